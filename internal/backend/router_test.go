package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterRoute(t *testing.T) {
	src := map[string]int{"gemini": 1, "offline": 2}
	r := NewRouter(src, "offline")
	src["late"] = 3

	v, name, err := r.Route("gemini")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, "gemini", name)

	v, name, err = r.Route("")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, "offline", name)

	assert.False(t, r.Has("late"))
	assert.Equal(t, []string{"gemini", "offline"}, r.Engines())
}

func TestRouterNoFallback(t *testing.T) {
	r := NewRouter(map[string]string{}, "missing")
	_, _, err := r.Route("x")
	require.Error(t, err)
}
