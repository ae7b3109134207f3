package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
	"pearlgen/internal/shared/types"
)

// LoadIni loads the pearlgen.ini behavior configuration file.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}

	// Secrets can be supplied via the environment instead of the ini file.
	overrideFromEnvStr(&cfg.IMAPConf.Password, "PEARLGEN_IMAP_PASSWORD")
	overrideFromEnvStr(&cfg.SMSConf.APIKey, "PEARLGEN_SMS_API_KEY")
	overrideFromEnvStr(&cfg.NotifyConf.WebhookURL, "PEARLGEN_WEBHOOK_URL")
	overrideFromEnvInt(&cfg.PoolConf.Workers, "PEARLGEN_WORKERS")

	applyDefaults(cfg)
	return Validate(cfg)
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *types.Config) error {
	if cfg.PoolConf.Workers <= 0 {
		return fmt.Errorf("pool.workers must be positive, got %d", cfg.PoolConf.Workers)
	}
	if cfg.PoolConf.RetryBound < 0 {
		return fmt.Errorf("pool.retry_bound must not be negative, got %d", cfg.PoolConf.RetryBound)
	}
	if cfg.OTPConf.PollIntervalSeconds <= 0 {
		return fmt.Errorf("otp.poll_interval_seconds must be positive, got %d", cfg.OTPConf.PollIntervalSeconds)
	}
	if cfg.OTPConf.DeadlineSeconds <= 0 {
		return fmt.Errorf("otp.deadline_seconds must be positive, got %d", cfg.OTPConf.DeadlineSeconds)
	}
	return nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.PoolConf.ProxyFailureThreshold == 0 {
		cfg.PoolConf.ProxyFailureThreshold = 3
	}
	if cfg.PoolConf.LeaseWaitSeconds == 0 {
		cfg.PoolConf.LeaseWaitSeconds = 5
	}
	if cfg.PoolConf.ProxyCheckSeconds == 0 {
		cfg.PoolConf.ProxyCheckSeconds = 4
	}
	if cfg.IMAPConf.Port == 0 {
		cfg.IMAPConf.Port = 993
	}
	if cfg.BrowserConf.TimeoutSeconds == 0 {
		cfg.BrowserConf.TimeoutSeconds = 60
	}
	if cfg.StoreConf.Dir == "" {
		cfg.StoreConf.Dir = ".accounts"
	}
	if cfg.LogConf.Level == "" {
		cfg.LogConf.Level = "info"
	}
}

// WriteTemplate writes a commented ini skeleton for the user to fill in.
// It refuses to overwrite an existing file.
func WriteTemplate(fileName string) error {
	if _, err := os.Stat(fileName); err == nil {
		return fmt.Errorf("config file %s already exists", fileName)
	}
	return os.WriteFile(fileName, []byte(configTemplate), 0644)
}

const configTemplate = `[pool]
workers = 3
retry_bound = 1
proxy_failure_threshold = 3
lease_wait_seconds = 5
proxy_check_seconds = 4

[otp]
poll_interval_seconds = 3
deadline_seconds = 300

[imap]
server =
port = 993
email =
password =

[sms]
base_url = https://api.smspool.net
api_key =
country = GB
service = 39
max_price = 0.20

[browser]
devtools_url = ws://127.0.0.1:9222
timeout_seconds = 60

[signup]
base_url = https://www.amazon.fr
locale = fr-FR

[store]
dir = .accounts

[notify]
webhook_url =

[log]
level = info
`

func overrideFromEnvStr(target *string, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
