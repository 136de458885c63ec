package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsAppearInOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf})

	l.Info(context.Background(), "Order executed", map[string]interface{}{"symbol": "BTCUSDT", "qty": 0.5})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Order executed", entry["message"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.InDelta(t, 0.5, entry["qty"], 1e-9)
}

func TestErrorIncludesErr(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf})

	l.Error(context.Background(), errors.New("boom"), "Analysis failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Debug(context.Background(), "noise")
	l.Info(context.Background(), "noise")
	assert.Zero(t, buf.Len())

	l.Warn(context.Background(), "kept")
	assert.NotZero(t, buf.Len())
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "loud", Output: &buf})

	l.Debug(context.Background(), "noise")
	assert.Zero(t, buf.Len())

	l.Info(context.Background(), "kept")
	assert.NotZero(t, buf.Len())
}
