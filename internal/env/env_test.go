package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway_port: 9000\nCOACH_TIMEOUT: 3s\nCONTENT_EMBEDDED: true\n"), 0o644))

	t.Cleanup(func() { file = map[string]string{} })
	require.NoError(t, LoadFile(path))

	assert.Equal(t, 9000, Int("GATEWAY_PORT", 3001))
	assert.Equal(t, 3*time.Second, Duration("COACH_TIMEOUT", time.Second))
	assert.True(t, Bool("CONTENT_EMBEDDED", false))

	t.Setenv("GATEWAY_PORT", "9100")
	assert.Equal(t, 9100, Int("GATEWAY_PORT", 3001), "environment overrides the file")
}

func TestFallbacks(t *testing.T) {
	t.Setenv("MAESTRO_TEST_BAD_INT", "nope")
	t.Setenv("MAESTRO_TEST_SECONDS", "2.5")

	assert.Equal(t, "x", Str("MAESTRO_TEST_UNSET", "x"))
	assert.Equal(t, 7, Int("MAESTRO_TEST_BAD_INT", 7))
	assert.Equal(t, 0.5, Float("MAESTRO_TEST_UNSET", 0.5))
	assert.Equal(t, 2500*time.Millisecond, Duration("MAESTRO_TEST_SECONDS", 0))
}

func TestLoadFileMissing(t *testing.T) {
	err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
