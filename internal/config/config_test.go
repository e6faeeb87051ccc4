package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fingerprint:\n  database:\n    type: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "memory", cfg.Fingerprint.Database.Type)
	require.Equal(t, 0.5, cfg.Fingerprint.Recognition.ConfidenceThreshold)
	require.Equal(t, -40.0, cfg.Fingerprint.Recognition.EnergyThresholdDB)
}

func TestLoadPostgresEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_USER", "svc")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fingerprint:\n  database:\n    type: postgresql\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "db.internal", cfg.Fingerprint.Database.Host)
	require.Equal(t, 6543, cfg.Fingerprint.Database.Port)
	require.Equal(t, "svc", cfg.Fingerprint.Database.User)
	require.Equal(t, "resonance", cfg.Fingerprint.Database.Database)
}

func TestWriteTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	require.NoError(t, WriteTemplate(path, "mysql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "type: mysql")
	require.Contains(t, string(data), "3306")
}
