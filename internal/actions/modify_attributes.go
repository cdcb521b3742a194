// ABOUTME: modify_attributes_action (^a): sets and removes channel / named user attributes
// ABOUTME: Validates the {channel|named_user: {set: {...}, remove: [...]}} shape before editing

package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Names the modify attributes action is registered under.
const (
	ModifyAttributesName      = "modify_attributes_action"
	ModifyAttributesShortName = "^a"
)

const (
	channelKey   = "channel"
	namedUserKey = "named_user"
	setKey       = "set"
	removeKey    = "remove"
)

// AttributesEditor batches attribute mutations until Apply.
type AttributesEditor interface {
	SetString(name, value string)
	SetNumber(name string, value float64)
	Remove(name string)
	Apply(ctx context.Context) error
}

// EditorProvider opens an editor for "channel" or "named_user".
// It returns nil when the scope is unavailable; that block is then skipped.
type EditorProvider func(scope string) AttributesEditor

// ModifyAttributesAction applies attribute mutations from a payload such as
//
//	{
//	  "channel":    {"set": {"tier": "gold"}, "remove": ["trial"]},
//	  "named_user": {"set": {"visits": 3}}
//	}
//
// It rejects background pushes.
type ModifyAttributesAction struct {
	editors EditorProvider
	logger  *slog.Logger
}

var _ Action = (*ModifyAttributesAction)(nil)

// NewModifyAttributesAction creates the action. Pass nil logger for default.
func NewModifyAttributesAction(editors EditorProvider, logger *slog.Logger) *ModifyAttributesAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModifyAttributesAction{
		editors: editors,
		logger:  logger.With("action", ModifyAttributesName),
	}
}

// Register adds the action to r under its long and short names.
func (a *ModifyAttributesAction) Register(r *Registry) error {
	return r.Register(a, ModifyAttributesName, ModifyAttributesShortName)
}

// AcceptsArguments implements Action.
func (a *ModifyAttributesAction) AcceptsArguments(args Arguments) bool {
	if args.Situation == SituationBackgroundPush {
		return false
	}

	blocks, ok := args.Value.(map[string]any)
	if !ok {
		return false
	}

	// Every block must itself be an object.
	for _, v := range blocks {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}

	namedUser, hasNamedUser := blocks[namedUserKey]
	if hasNamedUser && !mutationsValid(namedUser.(map[string]any)) {
		return false
	}

	channel, hasChannel := blocks[channelKey]
	if hasChannel && !mutationsValid(channel.(map[string]any)) {
		return false
	}

	return hasNamedUser || hasChannel
}

// mutationsValid requires a non-empty "set" object and/or a non-empty "remove"
// list of strings. A present but empty or mistyped entry is invalid.
func mutationsValid(block map[string]any) bool {
	sets, hasSets := block[setKey]
	if hasSets {
		m, ok := sets.(map[string]any)
		if !ok || len(m) == 0 {
			return false
		}
	}

	removes, hasRemoves := block[removeKey]
	if hasRemoves {
		if _, ok := stringList(removes); !ok {
			return false
		}
	}

	return hasSets || hasRemoves
}

// stringList converts a decoded JSON array to strings. It fails on an empty
// list or on any non-string element.
func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, len(list) > 0
	case []any:
		if len(list) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Perform implements Action. Channel edits are applied before named user edits.
func (a *ModifyAttributesAction) Perform(ctx context.Context, args Arguments) (Result, error) {
	blocks, _ := args.Value.(map[string]any)

	var errs []error
	for _, scope := range []string{channelKey, namedUserKey} {
		block, ok := blocks[scope].(map[string]any)
		if !ok {
			continue
		}

		var editor AttributesEditor
		if a.editors != nil {
			editor = a.editors(scope)
		}
		if editor == nil {
			a.logger.Warn("no attribute editor available", "scope", scope)
			continue
		}

		if err := a.applyEdits(ctx, block, editor); err != nil {
			errs = append(errs, fmt.Errorf("applying %s attributes: %w", scope, err))
		}
	}

	return Result{}, errors.Join(errs...)
}

func (a *ModifyAttributesAction) applyEdits(ctx context.Context, block map[string]any, editor AttributesEditor) error {
	if sets, ok := block[setKey].(map[string]any); ok {
		for name, value := range sets {
			switch v := value.(type) {
			case string:
				editor.SetString(name, v)
			case float64:
				editor.SetNumber(name, v)
			case int:
				editor.SetNumber(name, float64(v))
			case int64:
				editor.SetNumber(name, float64(v))
			case json.Number:
				f, err := v.Float64()
				if err != nil {
					a.logger.Error("unable to process attribute", "attribute", name, "value", v.String())
					continue
				}
				editor.SetNumber(name, f)
			default:
				a.logger.Error("unable to process attribute", "attribute", name, "value", value)
			}
		}
	}

	if removes, ok := stringList(block[removeKey]); ok {
		for _, name := range removes {
			editor.Remove(name)
		}
	}

	return editor.Apply(ctx)
}
