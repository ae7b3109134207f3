package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pearlgen/internal/shared/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pearlgen.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `[pool]
workers = 2
retry_bound = 1

[otp]
poll_interval_seconds = 3
deadline_seconds = 300

[imap]
server = imap.example.com
email = inbox@example.com
password = filepass

[signup]
base_url = https://www.amazon.fr
locale = fr-FR
`

func TestLoadIni(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	var cfg types.Config
	require.NoError(t, LoadIni(&cfg, path))

	assert.Equal(t, 2, cfg.PoolConf.Workers)
	assert.Equal(t, 1, cfg.PoolConf.RetryBound)
	assert.Equal(t, 3, cfg.OTPConf.PollIntervalSeconds)
	assert.Equal(t, 300, cfg.OTPConf.DeadlineSeconds)
	assert.Equal(t, "imap.example.com", cfg.IMAPConf.Server)
	assert.Equal(t, "https://www.amazon.fr", cfg.SignupConf.BaseURL)

	// Defaults fill the gaps.
	assert.Equal(t, 3, cfg.PoolConf.ProxyFailureThreshold)
	assert.Equal(t, 993, cfg.IMAPConf.Port)
	assert.Equal(t, ".accounts", cfg.StoreConf.Dir)
	assert.Equal(t, "info", cfg.LogConf.Level)
}

func TestLoadIni_EnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("PEARLGEN_IMAP_PASSWORD", "envpass")
	t.Setenv("PEARLGEN_SMS_API_KEY", "env-api-key")
	t.Setenv("PEARLGEN_WORKERS", "7")

	var cfg types.Config
	require.NoError(t, LoadIni(&cfg, path))

	assert.Equal(t, "envpass", cfg.IMAPConf.Password)
	assert.Equal(t, "env-api-key", cfg.SMSConf.APIKey)
	assert.Equal(t, 7, cfg.PoolConf.Workers)
}

func TestLoadIni_MissingFile(t *testing.T) {
	var cfg types.Config
	assert.Error(t, LoadIni(&cfg, filepath.Join(t.TempDir(), "missing.ini")))
}

func TestValidate(t *testing.T) {
	valid := types.Config{}
	valid.PoolConf.Workers = 1
	valid.OTPConf.PollIntervalSeconds = 3
	valid.OTPConf.DeadlineSeconds = 300
	assert.NoError(t, Validate(&valid))

	noWorkers := valid
	noWorkers.PoolConf.Workers = 0
	assert.Error(t, Validate(&noWorkers))

	negativeRetry := valid
	negativeRetry.PoolConf.RetryBound = -1
	assert.Error(t, Validate(&negativeRetry))

	noInterval := valid
	noInterval.OTPConf.PollIntervalSeconds = 0
	assert.Error(t, Validate(&noInterval))

	noDeadline := valid
	noDeadline.OTPConf.DeadlineSeconds = 0
	assert.Error(t, Validate(&noDeadline))
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pearlgen.ini")
	require.NoError(t, WriteTemplate(path))

	// The template must load and validate as-is.
	var cfg types.Config
	require.NoError(t, LoadIni(&cfg, path))
	assert.Equal(t, 3, cfg.PoolConf.Workers)

	// Never clobber an existing file.
	assert.Error(t, WriteTemplate(path))
}
