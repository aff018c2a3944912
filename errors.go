package wsloop

import (
	"github.com/gravitational/trace"
)

// UpgradeErrorKind is the closed taxonomy of failures the Upgrader can
// surface to the enclosing HTTP upgrade framework.
type UpgradeErrorKind int

const (
	// InvalidUpgradeHeader means a required header was missing,
	// duplicated, or carried an unsupported value.
	InvalidUpgradeHeader UpgradeErrorKind = iota + 1
	// UnsupportedWebSocketTarget means shouldUpgrade rejected the request.
	UnsupportedWebSocketTarget
)

func (k UpgradeErrorKind) String() string {
	switch k {
	case InvalidUpgradeHeader:
		return "InvalidUpgradeHeader"
	case UnsupportedWebSocketTarget:
		return "UnsupportedWebSocketTarget"
	default:
		return "UnknownUpgradeError"
	}
}

// UpgradeError is returned by BuildUpgradeResponse. The caller
// is responsible for translating it into an HTTP error response and
// closing the connection; no partial state is committed before a request
// is judged invalid.
type UpgradeError struct {
	Kind    UpgradeErrorKind
	Reason  string
	wrapped error
}

func (e *UpgradeError) Error() string {
	return e.Kind.String() + ": " + e.Reason
}

func (e *UpgradeError) Unwrap() error {
	return e.wrapped
}

func newInvalidHeaderError(reason string) error {
	return trace.Wrap(&UpgradeError{Kind: InvalidUpgradeHeader, Reason: reason})
}

func newUnsupportedTargetError(reason string) error {
	return trace.Wrap(&UpgradeError{Kind: UnsupportedWebSocketTarget, Reason: reason})
}
