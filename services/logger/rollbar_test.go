package logsvc

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	local, err := NewLocal(core.LogConfig{Level: "debug"}, &buf)
	require.NoError(t, err)
	lgr := NewRollbarLogger(local, &core.Config{Env: "TEST", TestMode: true})

	usr := user.User{ID: "u-1", Username: "jdoe"}
	lgr.Error("saving quiz", errors.New("boom"), map[string]interface{}{"quiz_id": "q-1"}, usr)

	out := buf.String()
	assert.Contains(t, out, "saving quiz")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "quiz_id=q-1")
	assert.Contains(t, out, "user_id=u-1")
}

func TestNewLocal_levelFallback(t *testing.T) {
	var buf bytes.Buffer
	local, err := NewLocal(core.LogConfig{Level: "nope"}, &buf)
	require.NoError(t, err)

	lgr := NewRollbarLogger(local, &core.Config{Env: "TEST", TestMode: true})
	lgr.Debug("hidden")
	lgr.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
