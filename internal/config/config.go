package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Epayco struct {
		PublicKey  string `yaml:"public_key"`  // p_cust_id_cliente
		PrivateKey string `yaml:"private_key"` // p_key, участвует в подписи
		BaseURL    string `yaml:"base_url"`
		TestMode   bool   `yaml:"test_mode"`
	} `yaml:"epayco"`

	Daimo struct {
		APIKey        string `yaml:"api_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		BaseURL       string `yaml:"base_url"`
	} `yaml:"daimo"`

	Payments struct {
		CheckoutDomain string `yaml:"checkout_domain"`
		WebhookDomain  string `yaml:"webhook_domain"`
		// Курс USD -> COP для суммы списания.
		COPRate float64 `yaml:"cop_rate"`

		LockTTLSeconds        int `yaml:"lock_ttl_seconds"`
		CheckoutWindowSeconds int `yaml:"checkout_window_seconds"`
		RateLimitPerHour      int `yaml:"rate_limit_per_hour"`

		// Пороги recovery-джобов.
		StuckAfterMinutes     int `yaml:"stuck_after_minutes"`
		AbandonedAfterHours   int `yaml:"abandoned_after_hours"`
		RecoveryIntervalMin   int `yaml:"recovery_interval_minutes"`
		CleanupIntervalMin    int `yaml:"cleanup_interval_minutes"`
		ConfirmTokenTTLMinute int `yaml:"confirm_token_ttl_minutes"`
		ConfirmTokenSecret    string `yaml:"confirm_token_secret"`
	} `yaml:"payments"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
	} `yaml:"email"`
}

var AppConfig *Config

func LoadConfig() {
	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}

		applyDefaults(&cfg)
		AppConfig = &cfg
		return
	}

	// Режим конфигурации из переменных окружения (тесты и контейнеры).
	cfg.Database.DSN = dbURL
	cfg.Server.Env = os.Getenv("SERVER_ENV")
	cfg.Server.Port, _ = strconv.Atoi(os.Getenv("SERVER_PORT"))

	cfg.Redis.Addr = envOr("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	cfg.Epayco.PublicKey = os.Getenv("EPAYCO_PUBLIC_KEY")
	cfg.Epayco.PrivateKey = os.Getenv("EPAYCO_PRIVATE_KEY")
	cfg.Epayco.TestMode = os.Getenv("EPAYCO_TEST_MODE") == "true"

	cfg.Daimo.APIKey = os.Getenv("DAIMO_API_KEY")
	cfg.Daimo.WebhookSecret = os.Getenv("DAIMO_WEBHOOK_SECRET")

	cfg.Payments.ConfirmTokenSecret = os.Getenv("PAYMENT_TOKEN_SECRET")

	applyDefaults(&cfg)
	AppConfig = &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Epayco.BaseURL == "" {
		cfg.Epayco.BaseURL = "https://secure.epayco.co"
	}
	if cfg.Daimo.BaseURL == "" {
		cfg.Daimo.BaseURL = "https://pay.daimo.com"
	}
	if cfg.Payments.CheckoutDomain == "" {
		cfg.Payments.CheckoutDomain = "https://easybots.store"
	}
	if cfg.Payments.WebhookDomain == "" {
		cfg.Payments.WebhookDomain = "https://pnptv.app"
	}
	if cfg.Payments.COPRate == 0 {
		cfg.Payments.COPRate = 4000
	}
	if cfg.Payments.LockTTLSeconds == 0 {
		cfg.Payments.LockTTLSeconds = 300
	}
	if cfg.Payments.CheckoutWindowSeconds == 0 {
		cfg.Payments.CheckoutWindowSeconds = 3600
	}
	if cfg.Payments.RateLimitPerHour == 0 {
		cfg.Payments.RateLimitPerHour = 10
	}
	if cfg.Payments.StuckAfterMinutes == 0 {
		cfg.Payments.StuckAfterMinutes = 10
	}
	if cfg.Payments.AbandonedAfterHours == 0 {
		cfg.Payments.AbandonedAfterHours = 24
	}
	if cfg.Payments.RecoveryIntervalMin == 0 {
		cfg.Payments.RecoveryIntervalMin = 5
	}
	if cfg.Payments.CleanupIntervalMin == 0 {
		cfg.Payments.CleanupIntervalMin = 60
	}
	if cfg.Payments.ConfirmTokenTTLMinute == 0 {
		cfg.Payments.ConfirmTokenTTLMinute = 60
	}
}

// ValidateProduction - fail closed: в production отсутствие секретов
// провайдеров это фатальная ошибка конфигурации, не warning.
func (c *Config) ValidateProduction() error {
	if !c.IsProduction() {
		return nil
	}
	if c.Epayco.PrivateKey == "" {
		return fmt.Errorf("EPAYCO_PRIVATE_KEY must be configured in production")
	}
	if c.Epayco.PublicKey == "" {
		return fmt.Errorf("EPAYCO_PUBLIC_KEY must be configured in production")
	}
	if c.Daimo.WebhookSecret == "" {
		return fmt.Errorf("DAIMO_WEBHOOK_SECRET must be configured in production")
	}
	if c.Payments.ConfirmTokenSecret == "" {
		return fmt.Errorf("PAYMENT_TOKEN_SECRET must be configured in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LockTTL удобный доступ к TTL блокировки как Duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Payments.LockTTLSeconds) * time.Second
}

// CheckoutWindow - окно, в котором pending-платеж еще можно оплатить.
func (c *Config) CheckoutWindow() time.Duration {
	return time.Duration(c.Payments.CheckoutWindowSeconds) * time.Second
}

// ConfirmTokenTTL - время жизни токена подтверждения платежа.
func (c *Config) ConfirmTokenTTL() time.Duration {
	return time.Duration(c.Payments.ConfirmTokenTTLMinute) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}
