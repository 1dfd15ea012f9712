// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package logger holds the slog.Logger shared by the rhi
// packages and drivers.
// By default nothing is logged.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discard is a slog.Handler that drops every record.
// Enabled returns false so callers skip formatting.
type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (discard) WithAttrs([]slog.Attr) slog.Handler        { return discard{} }
func (discard) WithGroup(string) slog.Handler             { return discard{} }

var ptr atomic.Pointer[slog.Logger]

func init() { ptr.Store(slog.New(discard{})) }

// Set replaces the shared logger.
// Passing nil restores the discarding logger.
func Set(l *slog.Logger) {
	if l == nil {
		l = slog.New(discard{})
	}
	ptr.Store(l)
}

// Get returns the shared logger.
func Get() *slog.Logger { return ptr.Load() }
