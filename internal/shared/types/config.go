package types

// PoolConf controls the provisioning worker pool.
type PoolConf struct {
	Workers               int `ini:"workers"`
	RetryBound            int `ini:"retry_bound"`
	ProxyFailureThreshold int `ini:"proxy_failure_threshold"`
	LeaseWaitSeconds      int `ini:"lease_wait_seconds"`
	ProxyCheckSeconds     int `ini:"proxy_check_seconds"`
}

// OTPConf controls the verification-code resolver.
type OTPConf struct {
	PollIntervalSeconds int `ini:"poll_interval_seconds"`
	DeadlineSeconds     int `ini:"deadline_seconds"`
}

// IMAPConf holds the catch-all mailbox credentials used to read
// verification emails for every identity in a run.
type IMAPConf struct {
	Server   string `ini:"server"`
	Port     int    `ini:"port"`
	Email    string `ini:"email"`
	Password string `ini:"password"`
}

// SMSConf holds the SMS-code provider API settings.
type SMSConf struct {
	BaseURL  string `ini:"base_url"`
	APIKey   string `ini:"api_key"`
	Country  string `ini:"country"`
	Service  string `ini:"service"`
	MaxPrice string `ini:"max_price"`
}

// BrowserConf holds the DevTools endpoint of the browser the signup
// driver attaches to.
type BrowserConf struct {
	DevtoolsURL    string `ini:"devtools_url"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
}

// SignupConf describes the external signup target.
type SignupConf struct {
	BaseURL string `ini:"base_url"`
	Locale  string `ini:"locale"`
}

// StoreConf holds the accounts directory.
type StoreConf struct {
	Dir string `ini:"dir"`
}

// NotifyConf holds the optional run-report webhook.
type NotifyConf struct {
	WebhookURL string `ini:"webhook_url"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the unified configuration structure mapped from pearlgen.ini.
type Config struct {
	PoolConf    `ini:"pool"`
	OTPConf     `ini:"otp"`
	IMAPConf    `ini:"imap"`
	SMSConf     `ini:"sms"`
	BrowserConf `ini:"browser"`
	SignupConf  `ini:"signup"`
	StoreConf   `ini:"store"`
	NotifyConf  `ini:"notify"`
	LogConf     `ini:"log"`
}
