// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaultDiscards(t *testing.T) {
	if Get().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("Get: default logger should not be enabled")
	}
}

func TestSet(t *testing.T) {
	var buf bytes.Buffer
	Set(slog.New(slog.NewTextHandler(&buf, nil)))
	defer Set(nil)
	Get().Info("hello", "k", 1)
	if s := buf.String(); !strings.Contains(s, "hello") {
		t.Fatalf("Get().Info:\nhave %q\nwant substring %q", s, "hello")
	}
	Set(nil)
	if Get().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("Set(nil): logger should discard")
	}
}
