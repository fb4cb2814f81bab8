package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "gradetrack.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.Remote.PollInterval.Std())
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/gradetrack/data.db
target_grade: 4.5
remote:
  url: https://docs.example.com
  call_timeout: 5s
sync:
  parallelism: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/gradetrack/data.db", cfg.DBPath)
	assert.Equal(t, 4.5, cfg.TargetGrade)
	assert.Equal(t, "https://docs.example.com", cfg.Remote.URL)
	assert.Equal(t, 5*time.Second, cfg.Remote.CallTimeout.Std())
	assert.Equal(t, 8, cfg.Sync.Parallelism)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Remote.PollInterval.Std())
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeConfig(t, "db_pathh: oops.db\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadDurationFails(t *testing.T) {
	path := writeConfig(t, "remote:\n  call_timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"empty db_path":         `db_path: ""`,
		"negative parallelism":  "sync:\n  parallelism: -1",
		"negative attempts":     "sync:\n  max_attempts: -2",
		"negative target grade": "target_grade: -1.0",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
