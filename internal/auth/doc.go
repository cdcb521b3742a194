// Package auth provides bearer token authentication for the debugkit API.
//
// Tokens are HS256 JWTs signed with auth.jwt_secret. The only claim the
// server relies on is "sub", which names the client that pushed or read
// data and is attached to the request context by HTTPAuthMiddleware.
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("device-42", 24*time.Hour)
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier, logger)(apiHandler))
//
// When no secret is configured the API is served without authentication.
package auth
