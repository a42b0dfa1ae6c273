package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-turn-service/internal/config"
	"interview-turn-service/internal/service/speech"
)

func testConfig(t *testing.T, provider string) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.Speech.Provider = provider
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "turns.db")
	cfg.Kafka.Enabled = false
	return cfg
}

func TestNew_SelectsEngine(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{config.ProviderBrowser, "browser"},
		{config.ProviderMock, "mock"},
		{config.ProviderNone, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(t, tt.provider))
			require.NoError(t, err)
			defer a.Shutdown(context.Background())

			assert.Equal(t, tt.want, a.Engine.Name())
			assert.Equal(t, tt.want, a.Turns.EngineName())
			assert.NoError(t, a.Ready(context.Background()))
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), testConfig(t, "whisper"))
	assert.ErrorIs(t, err, speech.ErrUnknownEngine)
}

func TestNew_InvalidAnalysisURL(t *testing.T) {
	cfg := testConfig(t, config.ProviderBrowser)
	cfg.Analysis.BaseURL = "not a url"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t, config.ProviderBrowser)
	cfg.Store.DBPath = ""

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	turns, err := a.History.ListTurns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestShutdown_ReleasesOnce(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.ProviderMock))
	require.NoError(t, err)

	require.NoError(t, a.Start())
	assert.False(t, a.StartupTime.IsZero())
	assert.NoError(t, a.Shutdown(context.Background()))
	assert.NoError(t, a.Close())
}
