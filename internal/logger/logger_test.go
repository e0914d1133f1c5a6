package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "text")
	defer SetOutput(bytesDiscard{}, "text")

	Init(Config{Level: "WARN", Format: "text"})
	SetOutput(&buf, "text")

	Debug("hidden")
	Info("also hidden")
	Warn("visible", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "key=value")

	Init(Config{Level: "DEBUG", Format: "text"})
	SetOutput(&buf, "text")
	Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "INFO", Format: "json"})
	SetOutput(&buf, "json")
	defer SetOutput(bytesDiscard{}, "text")

	Info("structured", "count", 3)
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"), "json output: %s", line)
	assert.Contains(t, line, `"count":3`)
}

type bytesDiscard struct{}

func (bytesDiscard) Write(p []byte) (int, error) { return len(p), nil }
