package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactMasksMatchingKeys(t *testing.T) {
	in := "connecting with {'password': 'hunter2', 'bucket': 'photos'}"
	out := Redact(in)
	assert.Contains(t, out, "'password': '***'")
	assert.Contains(t, out, "'bucket': 'photos'")
}

func TestRedactIsCaseInsensitive(t *testing.T) {
	out := Redact("{'aws_secret_access_key': 'abcd1234'}")
	assert.Equal(t, "{'aws_secret_access_key': '***'}", out)
}

func TestRedactLeavesNonSecretPairsAlone(t *testing.T) {
	out := Redact("{'repository': '/data/repo'}")
	assert.Equal(t, "{'repository': '/data/repo'}", out)
}

func TestHandlerRedactsMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("init repository with {'password': 'hunter2'}", slog.String("env", "{'token': 'deadbeef'}"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded["msg"], "'password': '***'")
	assert.Contains(t, decoded["env"], "'token': '***'")
}

func TestHandlerWithAttrsRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil))).With(slog.String("creds", "{'secret': 'shh'}"))

	logger.InfoContext(context.Background(), "starting")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded["creds"], "'secret': '***'")
}

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	logger := New("not-a-level")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
