package main

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docqa/internal/config"
	"github.com/fyrsmithlabs/docqa/internal/language"
	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/telemetry"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		args    []string
		want    mode
		wantErr bool
	}{
		{args: nil, want: modeHTTP},
		{args: []string{"serve"}, want: modeHTTP},
		{args: []string{"mcp"}, want: modeMCP},
		{args: []string{"version"}, want: ""},
		{args: []string{"bogus"}, wantErr: true},
		{args: []string{"mcp", "extra"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "args %v", tt.args)
			continue
		}
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, tt.want, got)
	}
}

func TestRun_RejectsConfigOutsideAllowedDirs(t *testing.T) {
	err := run(context.Background(), modeHTTP, "/tmp/docqa-config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestNewLogger(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Observability.LogLevel = "trace"
	logger, err := newLogger(cfg, modeMCP, tel)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(logging.TraceLevel))

	cfg.Observability.LogLevel = "loud"
	_, err = newLogger(cfg, modeHTTP, tel)
	assert.Error(t, err)
}

func TestInitDependencies_WithEvents(t *testing.T) {
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Embeddings.Provider = "tei"
	cfg.Embeddings.BaseURL = "http://127.0.0.1:1"
	cfg.Embeddings.Dimension = 16
	cfg.Generator.Provider = "none"
	cfg.Events.Enabled = true
	cfg.Events.NATSURL = ns.ClientURL()

	deps, err := initDependencies(context.Background(), cfg, logging.NewNop(), tel)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.natsConn)
	assert.Equal(t, 16, deps.provider.Dimension())

	info, err := deps.sessions.Create(context.Background(), language.English, language.None)
	require.NoError(t, err)
	assert.Equal(t, cfg.Retrieval.Backend, info.Backend)
}

func TestInitDependencies_UnreachableNATS(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Embeddings.Dimension = 16
	cfg.Generator.Provider = "none"
	cfg.Events.Enabled = true
	cfg.Events.NATSURL = "nats://127.0.0.1:1"

	_, err = initDependencies(context.Background(), cfg, logging.NewNop(), tel)
	assert.Error(t, err)
}
