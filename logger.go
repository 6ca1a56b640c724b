package cgpu

import (
	"context"
	"log/slog"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// NopLogger returns a logger that discards everything. Backends use it when
// the instance descriptor carries no logger.
func NopLogger() *slog.Logger { return newNopLogger() }

// loggerOrNop returns l, or a silent logger when l is nil.
func loggerOrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return newNopLogger()
	}
	return l
}

// logNative records a classified native failure on the owning object's
// logger and returns err unchanged so call sites can write
// `return logNative(log, "CreateBuffer", err)`.
func logNative(log *slog.Logger, op string, err error) error {
	if err != nil {
		log.Error("cgpu: native call failed", "op", op, "err", err)
	}
	return err
}
