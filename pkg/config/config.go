package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BackendBaseURL string
	HTTPTimeout    time.Duration

	VNPay   VNPay
	Channel Channel

	Reconcile Retry
	Offline   Offline

	Store Store

	NATSURL string
}

type VNPay struct {
	TmnCode       string
	HashSecret    string
	BaseURL       string
	ReturnURL     string
	ReturnScheme  string
	ReturnPath    string
	LoopbackHosts []string
	AllowInsecure bool
}

type Channel struct {
	Timeout time.Duration
	Grace   time.Duration
}

type Retry struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	PerAttemptTimeout time.Duration
}

type Offline struct {
	MaxAttempts   int
	MaxAge        time.Duration
	RetentionDays int
}

type Store struct {
	Driver string
	Path   string
	DSN    string
}

// Load reads .env (if any) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	cfg := Config{
		BackendBaseURL: getString("BACKEND_BASE_URL", "http://localhost:8000"),
		HTTPTimeout:    getMillis("HTTP_TIMEOUT_MS", 15000),
		VNPay: VNPay{
			TmnCode:       os.Getenv("VNPAY_TMN_CODE"),
			HashSecret:    os.Getenv("VNPAY_HASH_SECRET"),
			BaseURL:       getString("VNPAY_BASE_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:     getString("VNPAY_RETURN_URL", "http://localhost:8000/payment/vnpay/return"),
			ReturnScheme:  getString("RETURN_SCHEME", "app://payment-return"),
			ReturnPath:    getString("RETURN_PATH", "/payment/vnpay/return"),
			LoopbackHosts: getList("LOOPBACK_HOSTS", []string{"localhost", "127.0.0.1", "::1", "10.0.2.2"}),
			AllowInsecure: os.Getenv("PAYMENT_URL_ALLOW_INSECURE") == "true",
		},
		Channel: Channel{
			Timeout: getMillis("CHANNEL_TIMEOUT_MS", 30000),
			Grace:   getMillis("CHANNEL_GRACE_MS", 1500),
		},
		Reconcile: Retry{
			MaxAttempts:       getInt("RECONCILE_MAX_ATTEMPTS", 3),
			BaseDelay:         getMillis("RECONCILE_BASE_DELAY_MS", 1000),
			PerAttemptTimeout: getMillis("RECONCILE_TIMEOUT_MS", 15000),
		},
		Offline: Offline{
			MaxAttempts:   getInt("OFFLINE_MAX_ATTEMPTS", 5),
			MaxAge:        time.Duration(getInt("OFFLINE_MAX_AGE_HOURS", 24)) * time.Hour,
			RetentionDays: getInt("OFFLINE_RETENTION_DAYS", 7),
		},
		Store: Store{
			Driver: getString("STORE_DRIVER", "sqlite3"),
			Path:   getString("STORE_PATH", "storefront.db"),
		},
		NATSURL: os.Getenv("NATS_URL"),
	}

	if cfg.Store.Driver == "mysql" {
		cfg.Store.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"))
	} else {
		cfg.Store.DSN = cfg.Store.Path
	}

	return cfg
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getMillis(key string, def int) time.Duration {
	return time.Duration(getInt(key, def)) * time.Millisecond
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetInt is exported for the simulator programs.
func GetInt(key string, def int) int { return getInt(key, def) }

// GetString is exported for the simulator programs.
func GetString(key, def string) string { return getString(key, def) }
