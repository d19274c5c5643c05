// Package steperr carries failures of individual best-effort steps up to the
// invocation boundary, where they are logged and then dropped.
package steperr

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Error is one failed step. Only Step and Err are mandatory.
type Error struct {
	Step     string
	Email    string
	TenantID string
	Path     string
	UID      string
	Template string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Step)
	for _, kv := range e.pairs() {
		fmt.Fprintf(&b, " %s=%s", kv[0], kv[1])
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) pairs() [][2]string {
	var out [][2]string
	for _, kv := range [][2]string{
		{"email", e.Email},
		{"tenant", e.TenantID},
		{"path", e.Path},
		{"uid", e.UID},
		{"template", e.Template},
	} {
		if kv[1] != "" {
			out = append(out, kv)
		}
	}
	return out
}

// Fields renders the step context as zap fields.
func (e *Error) Fields() []zap.Field {
	fields := []zap.Field{zap.String("step", e.Step)}
	for _, kv := range e.pairs() {
		fields = append(fields, zap.String(kv[0], kv[1]))
	}
	return fields
}

// Fielder is implemented by wrapped errors that carry extra log detail,
// such as a provider's structured error body.
type Fielder interface {
	LogFields() []zap.Field
}

// Log writes one error entry per step failure found in err. It returns the
// number of entries written.
func Log(logger *zap.Logger, msg string, err error) int {
	if err == nil {
		return 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	errs := multierr.Errors(err)
	for _, e := range errs {
		fields := []zap.Field{zap.Error(e)}

		var step *Error
		if errors.As(e, &step) {
			fields = append(fields, step.Fields()...)
			e = step.Err
		}

		var fielder Fielder
		if errors.As(e, &fielder) {
			fields = append(fields, fielder.LogFields()...)
		}

		logger.Error(msg, fields...)
	}
	return len(errs)
}
