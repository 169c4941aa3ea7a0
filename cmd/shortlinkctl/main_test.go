package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/app"
	"github.com/penshort/shortlink/internal/auth"
	"github.com/penshort/shortlink/internal/config"
)

func sqliteOpener(t *testing.T) opener {
	dir := t.TempDir()
	cfg := &config.Config{
		AppEnv:                 "development",
		DatabaseURL:            filepath.Join(dir, "ctl.db"),
		SiteURL:                "https://www.example.com",
		SettingsFile:           filepath.Join(dir, "settings.yaml"),
		WriteTimeout:           time.Second,
		ShutdownTimeout:        time.Second,
		SweepWorkers:           1,
		HealthCheckRPS:         10,
		HealthCheckConcurrency: 1,
	}
	return func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop())
	}
}

func noApp(t *testing.T) opener {
	return func(context.Context) (*app.App, error) {
		t.Fatal("command should not open the store")
		return nil, nil
	}
}

func TestRun_GenKeyJSON(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-format", "json", "gen-key", "-name", "cron"}, &out, noApp(t))
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.True(t, auth.ValidateKeyFormat(got["key"]), got["key"])
	assert.Equal(t, "cron", got["name"])
	assert.Equal(t, got["key"]+":cron", got["entry"])
}

func TestRun_GenSecret(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"gen-secret"}, &out, noApp(t)))
	assert.Len(t, strings.TrimSpace(out.String()), 64)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{}, noApp(t))
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestRun_UnknownFormat(t *testing.T) {
	err := run(context.Background(), []string{"-format", "yaml", "expire"}, &bytes.Buffer{}, noApp(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestRun_MaintenanceCommands(t *testing.T) {
	open := sqliteOpener(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"expire"}, "CHECKED"},
		{[]string{"add-missing-links"}, "CREATED"},
		{[]string{"check-destinations", "-flag"}, "ID"},
		{[]string{"check-redirect-chains"}, "LOCATION"},
		{[]string{"purge-clicks"}, "click"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, run(context.Background(), tt.args, &out, open))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRun_GeneratePath(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-format", "json", "generate-path"}, &out, sqliteOpener(t)))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	defaults := config.DefaultSettings()
	slug, ok := strings.CutPrefix(got["path"], defaults.PathPrefix+"/")
	require.True(t, ok, got["path"])
	assert.Len(t, slug, defaults.PathLength)
}
