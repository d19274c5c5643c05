package steperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type detailedErr struct{}

func (detailedErr) Error() string { return "provider said no" }

func (detailedErr) LogFields() []zap.Field {
	return []zap.Field{zap.Int("status_code", 400)}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Step: "delete_membership", Email: "a@x.com", TenantID: "t1", Err: errors.New("boom")}
	require.Equal(t, "delete_membership email=a@x.com tenant=t1: boom", err.Error())
	require.ErrorContains(t, err, "boom")
}

func TestErrorUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := error(&Error{Step: "x", Err: sentinel})
	require.ErrorIs(t, err, sentinel)
}

func TestLogSplitsCombinedErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)

	combined := multierr.Combine(
		&Error{Step: "delete_account", Email: "a@x.com", UID: "u1", Err: errors.New("unavailable")},
		&Error{Step: "send_email", Template: "password_reset", Err: detailedErr{}},
		errors.New("plain"),
	)

	require.Equal(t, 3, Log(logger, "event step failed", combined))
	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	require.Equal(t, "delete_account", first["step"])
	require.Equal(t, "u1", first["uid"])

	second := entries[1].ContextMap()
	require.Equal(t, "password_reset", second["template"])
	require.EqualValues(t, 400, second["status_code"])

	require.NotContains(t, entries[2].ContextMap(), "step")
}

func TestLogNil(t *testing.T) {
	require.Zero(t, Log(nil, "nothing", nil))
}
