// ABOUTME: Server orchestrator that coordinates the HTTP API and gRPC health servers
// ABOUTME: Wires the push store, retention, notifications, actions and auth together

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/debugkit/internal/actions"
	"github.com/2389/debugkit/internal/auth"
	"github.com/2389/debugkit/internal/config"
	"github.com/2389/debugkit/internal/dedupe"
	"github.com/2389/debugkit/internal/notify"
	"github.com/2389/debugkit/internal/retention"
	"github.com/2389/debugkit/internal/store"
)

// ShutdownTimeout bounds graceful shutdown once Run's context is canceled.
const ShutdownTimeout = 5 * time.Second

// Tailscale ports used when the node listens on the tailnet.
const (
	tailscaleHTTPPort = ":80"
	tailscaleGRPCPort = ":50051"
)

// Server serves the push API over HTTP and a health service over gRPC.
type Server struct {
	config      *config.Config
	store       store.Store
	retention   *retention.Store
	broadcaster *notify.Broadcaster
	actions     *actions.Registry
	dedupe      *dedupe.Cache
	verifier    *auth.JWTVerifier
	page        *pageRenderer

	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server

	logger *slog.Logger
	now    func() time.Time
}

// New wires a server around st. The caller owns st and closes it after Run returns.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		store:       st,
		broadcaster: notify.NewBroadcaster(logger.With("component", "notify")),
		dedupe:      dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		logger:      logger.With("component", "server"),
		now:         time.Now,
	}
	received := notify.DelegateFunc(func(rec store.PushRecord) {
		s.logger.Info("push received", "push_id", rec.ID, "received_at", rec.ReceivedAt)
	})
	s.retention = retention.New(st, notify.Fanout{received, s.broadcaster}, logger)

	s.actions = actions.NewRegistry(logger.With("component", "actions"))
	modify := actions.NewModifyAttributesAction(s.attributeEditor, logger.With("component", "actions"))
	if err := modify.Register(s.actions); err != nil {
		s.closeComponents()
		return nil, fmt.Errorf("registering actions: %w", err)
	}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			s.closeComponents()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		s.verifier = verifier
	} else {
		s.logger.Warn("auth.jwt_secret not set, /api is unauthenticated")
	}

	page, err := newPageRenderer()
	if err != nil {
		s.closeComponents()
		return nil, fmt.Errorf("loading page templates: %w", err)
	}
	s.page = page

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcServer, s.health = newGRPCServer()

	return s, nil
}

// Retention exposes the retention store backing the server.
func (s *Server) Retention() *retention.Store {
	return s.retention
}

// Broadcaster exposes the push notification fan-out.
func (s *Server) Broadcaster() *notify.Broadcaster {
	return s.broadcaster
}

func (s *Server) attributeEditor(scope string) actions.AttributesEditor {
	sc := store.AttributeScope(scope)
	if !sc.Valid() {
		return nil
	}
	return s.store.EditAttributes(sc)
}

// Handler returns the HTTP handler serving the page, health and API routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.registerAPIRoutes(api)

	var apiHandler http.Handler = api
	if s.verifier != nil {
		apiHandler = auth.HTTPAuthMiddleware(s.verifier, s.logger)(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("/api/", apiHandler)
	return mux
}

// setupTCPListeners creates the HTTP listener and, when configured, the gRPC listener.
func (s *Server) setupTCPListeners() (httpLn, grpcLn net.Listener, err error) {
	s.logger.Info("starting debugkit",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.config.Server.GRPCAddr == "" {
		return httpLn, nil, nil
	}
	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	return httpLn, grpcLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.GRPCAddr != "" || s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr and server.grpc_addr are ignored when tailscale is enabled")
		}
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// Run serves until ctx is canceled or a server fails, then shuts down.
// Returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	httpLn, grpcLn, err := s.setupListeners(ctx)
	if err != nil {
		s.closeComponents()
		return err
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs the servers on already-open listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcLn != nil {
		g.Go(func() error {
			s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			s.logger.Info("context canceled, initiating shutdown")
		}
		return s.gracefulShutdown()
	})

	return g.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "debugkit", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens on it for HTTP and gRPC.
func (s *Server) setupTailscaleListeners(ctx context.Context) (httpLn, grpcLn net.Listener, err error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
		Logf: func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...), "source", "tsnet")
		},
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = s.tsnetServer.Listen("tcp", tailscaleHTTPPort)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	grpcLn, err = s.tsnetServer.Listen("tcp", tailscaleGRPCPort)
	if err != nil {
		_ = httpLn.Close()
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}
	return httpLn, grpcLn, nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (s *Server) closeComponents() {
	if s.dedupe != nil {
		s.dedupe.Close()
	}
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
}

// Shutdown stops both servers and releases server-owned resources. The store
// is left open.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	s.health.Shutdown()
	// Closing the broadcaster first ends open event streams so HTTP shutdown
	// does not wait on them.
	s.broadcaster.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	s.closeComponents()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountPushes(r.Context())
	if err != nil {
		s.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d pushes)", n)
}
