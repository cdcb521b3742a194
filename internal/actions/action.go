// ABOUTME: Action types: situations, arguments, results and the Action interface
// ABOUTME: Actions are typed operations triggered by names found in push payloads

package actions

import (
	"context"
	"errors"
	"fmt"
)

// Action errors
var (
	ErrActionNotFound    = errors.New("action not found")
	ErrRejectedArguments = errors.New("action rejected arguments")
)

// Situation is the context an action runs in.
type Situation string

const (
	SituationManualInvocation            Situation = "manual_invocation"
	SituationLaunchedFromPush            Situation = "launched_from_push"
	SituationForegroundPush              Situation = "foreground_push"
	SituationBackgroundPush              Situation = "background_push"
	SituationWebViewInvocation           Situation = "web_view_invocation"
	SituationForegroundInteractiveButton Situation = "foreground_interactive_button"
	SituationBackgroundInteractiveButton Situation = "background_interactive_button"
	SituationAutomation                  Situation = "automation"
)

var knownSituations = map[Situation]bool{
	SituationManualInvocation:            true,
	SituationLaunchedFromPush:            true,
	SituationForegroundPush:              true,
	SituationBackgroundPush:              true,
	SituationWebViewInvocation:           true,
	SituationForegroundInteractiveButton: true,
	SituationBackgroundInteractiveButton: true,
	SituationAutomation:                  true,
}

// ParseSituation converts a name to a Situation. An empty name is a foreground push.
func ParseSituation(name string) (Situation, error) {
	if name == "" {
		return SituationForegroundPush, nil
	}
	s := Situation(name)
	if !knownSituations[s] {
		return "", fmt.Errorf("unknown situation %q", name)
	}
	return s, nil
}

// Arguments are what an action is invoked with.
type Arguments struct {
	Situation Situation
	// Value is the decoded JSON found under the action's name.
	Value    any
	Metadata map[string]any
}

// Result is what an action produced.
type Result struct {
	Value any
}

// Action is a typed operation that a push payload can trigger.
type Action interface {
	// AcceptsArguments reports whether Perform may run with args.
	AcceptsArguments(args Arguments) bool
	Perform(ctx context.Context, args Arguments) (Result, error)
}
