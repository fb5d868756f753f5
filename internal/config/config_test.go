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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  host: localhost
  name: scanproof
tsa:
  url: http://tsa.example/tsr
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.ReceiveTimeout())
	assert.Equal(t, "sha256", cfg.TSA.HashAlgorithm)
	assert.Equal(t, 15*time.Second, cfg.TSATimeout())
	assert.Equal(t, 3, cfg.TSA.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.TSABackoff())
	assert.Equal(t, 2*time.Minute, cfg.ProcessTimeout())
	assert.Equal(t, 3, cfg.Ingest.WriteAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteBackoff())
}

func TestLoadIngestOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
ingest:
  processTimeoutSeconds: 30
  writeAttempts: 5
  writeBackoffMS: 100
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ProcessTimeout())
	assert.Equal(t, 5, cfg.Ingest.WriteAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.WriteBackoff())
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "tsa:\n  hashAlgorithm: md5\n"))
	require.Error(t, err)
}

func TestDSNHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: scan
  password: secret
  name: scanproof
`))
	require.NoError(t, err)

	assert.Equal(t,
		"host=db.internal port=5432 user=scan password=secret dbname=scanproof sslmode=disable",
		cfg.PostgresDSN())

	cfg.Database.Driver = "mysql"
	cfg.Database.Port = 3306
	assert.Equal(t,
		"scan:secret@tcp(db.internal:3306)/scanproof?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())
}
