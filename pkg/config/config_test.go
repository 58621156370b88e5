package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("LOOPBACK_HOSTS", "")
	t.Setenv("CHANNEL_TIMEOUT_MS", "")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, 3, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconcile.BaseDelay)
	assert.Equal(t, 15*time.Second, cfg.Reconcile.PerAttemptTimeout)
	assert.Equal(t, 5, cfg.Offline.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Offline.MaxAge)
	assert.Equal(t, 7, cfg.Offline.RetentionDays)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, cfg.Store.Path, cfg.Store.DSN)
	assert.Contains(t, cfg.VNPay.LoopbackHosts, "10.0.2.2")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHANNEL_TIMEOUT_MS", "5000")
	t.Setenv("RECONCILE_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("LOOPBACK_HOSTS", " localhost , ,10.0.2.2")
	t.Setenv("PAYMENT_URL_ALLOW_INSECURE", "true")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "storefront")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, 3, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, []string{"localhost", "10.0.2.2"}, cfg.VNPay.LoopbackHosts)
	assert.True(t, cfg.VNPay.AllowInsecure)
	assert.Equal(t, "app:pw@tcp(127.0.0.1:3306)/storefront?parseTime=true", cfg.Store.DSN)
}
