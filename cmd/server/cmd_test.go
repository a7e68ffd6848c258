package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCmd_Defaults(t *testing.T) {
	cmd := newCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "localhost:8000", addr)

	retain, err := cmd.Flags().GetBool("retain-results")
	require.NoError(t, err)
	assert.True(t, retain)
}

func TestNewCmd_Env(t *testing.T) {
	t.Setenv("SANTA_DSN", "memory")
	t.Setenv("SANTA_ALLOW_REDRAW", "true")
	t.Setenv("SANTA_ALLOWED_ORIGINS", "http://a.example.com,http://b.example.com")
	t.Setenv("SANTA_MAX_DRAW_ATTEMPTS", "12")

	cmd := newCmd()

	dsn, err := cmd.Flags().GetString("dsn")
	require.NoError(t, err)
	assert.Equal(t, "memory", dsn)

	redraw, err := cmd.Flags().GetBool("allow-redraw")
	require.NoError(t, err)
	assert.True(t, redraw)

	origins, err := cmd.Flags().GetStringSlice("allowed-origins")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, origins)

	attempts, err := cmd.Flags().GetInt("max-draw-attempts")
	require.NoError(t, err)
	assert.Equal(t, 12, attempts)
}

func TestFlags_Config(t *testing.T) {
	f := &flags{
		addr:            "localhost:9000",
		dsn:             "memory",
		retainResults:   true,
		maxDrawAttempts: 5,
		logFormat:       "json",
	}

	cfg, err := f.config()
	require.NoError(t, err)
	assert.True(t, cfg.InMemory())
	assert.Equal(t, 5, cfg.Draw.MaxAttempts)
	assert.Equal(t, "http://localhost:9000", cfg.PublicURL)

	f.maxDrawAttempts = 0
	_, err = f.config()
	assert.Error(t, err)
}
