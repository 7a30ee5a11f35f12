package logger_test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/testutils"
)

func TestMockLogger(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Info("hello", logger.String("k", "v"))
	if got := l.LastMessage(); got != "hello" {
		t.Fatalf("expected last message 'hello', got %q", got)
	}
}

func TestNewZapLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error", "bogus"} {
		l, err := logger.NewZapLogger(lvl)
		if err != nil {
			t.Fatalf("level %q: unexpected error %v", lvl, err)
		}
		l.Debug("probe", logger.Int("n", 1))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	l := logger.NewNop()
	l.Error("nothing", logger.Bool("b", true), logger.Float64("f", 1.5))
}

func TestFromZapForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := logger.FromZap(zap.New(core))
	l.Debug("dropped")
	l.Warn("qtable_save_failed", logger.String("trade_id", "t1"), logger.Any("n", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "qtable_save_failed" || e.Level != zapcore.WarnLevel {
		t.Fatalf("unexpected entry %+v", e)
	}
	if got := e.ContextMap()["trade_id"]; got != "t1" {
		t.Fatalf("expected trade_id t1, got %v", got)
	}
	if l := logger.FromZap(nil); l == nil {
		t.Fatal("FromZap(nil) returned nil")
	}
}
