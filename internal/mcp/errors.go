package mcp

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no connected server provides the requested
// capability.
var ErrNotFound = errors.New("not found")

// CapabilityKind names the three capability families a server can provide.
type CapabilityKind string

const (
	KindTool     CapabilityKind = "tool"
	KindPrompt   CapabilityKind = "prompt"
	KindResource CapabilityKind = "resource"
)

// CapabilityError wraps a failure to resolve or invoke a named capability.
type CapabilityError struct {
	Kind CapabilityKind
	Name string
	Err  error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a capability-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
