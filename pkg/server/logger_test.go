package server

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBLogHandler_WithoutDatabaseForwards(t *testing.T) {
	var buf bytes.Buffer
	h := NewDBLogHandler(nil, slog.NewTextHandler(&buf, nil))
	logger := slog.New(h).With("session", "abc", "node", "decision")

	logger.Info("Entering node", "step", 1)

	assert.Contains(t, buf.String(), "Entering node")
	assert.Contains(t, buf.String(), "session=abc")
}

func TestDBLogHandler_WithAttrsCapturesSession(t *testing.T) {
	h := NewDBLogHandler(nil, slog.NewTextHandler(&bytes.Buffer{}, nil))

	child, ok := h.WithAttrs([]slog.Attr{
		slog.String("session", "abc"),
		slog.Any("error", errors.New("boom")),
	}).(*DBLogHandler)
	require.True(t, ok)

	assert.Equal(t, "abc", child.session)
	assert.Equal(t, "boom", child.attrs["error"])
	assert.NotContains(t, child.attrs, "session")
	assert.Empty(t, h.session)
}
