// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"log/slog"

	"github.com/gviegas/rhi/internal/logger"
)

// SetLogger sets the logger used by rhi and its drivers.
// By default nothing is logged. Passing nil restores that.
//
// Levels:
//   - Debug: pool growth, pool resets and garbage sweeps
//   - Info: driver registration and device creation
//   - Warn: creation failures that yield invalid handles
//   - Error: device loss
func SetLogger(l *slog.Logger) { logger.Set(l) }

// Logger returns the logger set by SetLogger.
func Logger() *slog.Logger { return logger.Get() }
