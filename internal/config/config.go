package config

import (
	"encoding/json"
	"os"
	"strconv"
)

type Config struct {
	Server         ServerConfig         `json:"server"`
	Database       DatabaseConfig       `json:"database"`
	Redis          RedisConfig          `json:"redis"`
	Gateway        GatewayConfig        `json:"gateway"`
	Checkout       CheckoutConfig       `json:"checkout"`
	Webhook        WebhookConfig        `json:"webhook"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"password"`
	DBName         string `json:"dbname"`
	SSLMode        string `json:"sslmode"`
	MigrationsPath string `json:"migrations_path"`
	// TransactionsEnabled selects the unit-of-work strategy at startup: true
	// multi-statement transactions, or the sequential best-effort fallback for
	// deployments that cannot provide them.
	TransactionsEnabled bool `json:"transactions_enabled"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type GatewayConfig struct {
	BaseURL         string `json:"base_url"`
	MerchantID      string `json:"merchant_id"`
	CallbackBaseURL string `json:"callback_base_url"`
	// WebhookSalts maps salt index (carried in the X-Signature value after the
	// "###" separator) to the shared secret used for signature verification.
	WebhookSalts   map[string]string `json:"webhook_salts"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

type CheckoutConfig struct {
	RejectPriceMismatch   bool `json:"reject_price_mismatch"`
	ReaperIntervalSeconds int  `json:"reaper_interval_seconds"`
	// Amounts in minor units.
	FlatShippingCost int64 `json:"flat_shipping_cost"`
	FreeShippingOver int64 `json:"free_shipping_over"`
}

type WebhookConfig struct {
	RetryBaseSeconds      int `json:"retry_base_seconds"`
	RetryCapSeconds       int `json:"retry_cap_seconds"`
	MaxAttempts           int `json:"max_attempts"`
	WorkerIntervalSeconds int `json:"worker_interval_seconds"`
}

type ReconciliationConfig struct {
	IntervalSeconds     int `json:"interval_seconds"`
	BatchSize           int `json:"batch_size"`
	EventRetentionHours int `json:"event_retention_hours"`
}

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Webhook.RetryBaseSeconds == 0 {
		c.Webhook.RetryBaseSeconds = 1
	}
	if c.Webhook.RetryCapSeconds == 0 {
		c.Webhook.RetryCapSeconds = 300
	}
	if c.Webhook.MaxAttempts == 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.WorkerIntervalSeconds == 0 {
		c.Webhook.WorkerIntervalSeconds = 1
	}
	if c.Checkout.ReaperIntervalSeconds == 0 {
		c.Checkout.ReaperIntervalSeconds = 30
	}
	if c.Checkout.FlatShippingCost == 0 {
		c.Checkout.FlatShippingCost = 990
	}
	if c.Reconciliation.IntervalSeconds == 0 {
		c.Reconciliation.IntervalSeconds = 300
	}
	if c.Reconciliation.BatchSize == 0 {
		c.Reconciliation.BatchSize = 100
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 15
	}
}

func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
