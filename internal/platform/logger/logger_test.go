package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevelAndFormat(t *testing.T) {
	assert.Equal(t, Debug, ParseLevel(" DEBUG "))
	assert.Equal(t, Warn, ParseLevel("warning"))
	assert.Equal(t, Info, ParseLevel(""))
	assert.Equal(t, Info, ParseLevel("verbose"))
	assert.Equal(t, "error", Error.String())

	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("logfmt"))
}

func TestZapLogger_WithMergesFieldsAndSkipsBlankKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZap(zap.New(core))

	l.With(map[string]any{"patient_id": "p-1", " ": "ignored"}).Warn("rule skipped", map[string]any{
		"rule_id": "r-1",
		"err":     errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rule skipped", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "p-1", ctx["patient_id"])
	assert.Equal(t, "r-1", ctx["rule_id"])
	assert.Equal(t, "boom", ctx["err"])
	_, hasBlank := ctx[" "]
	assert.False(t, hasBlank)
}

func TestNop_DoesNotPanic(t *testing.T) {
	l := Nop()
	l.Info("hello", nil)
	assert.Same(t, l, l.With(nil))
}
