package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"storefront-checkout/pkg/config"
)

func main() {
	cfg := config.Load()

	st := gatewaySettings{
		HashSecret:       cfg.VNPay.HashSecret,
		SuccessRate:      config.GetInt("GATEWAY_SUCCESS_RATE", 80),
		ForceCode:        os.Getenv("GATEWAY_FORCE_CODE"),
		IdempotencyCheck: os.Getenv("GATEWAY_IDEMPOTENCY_CHECK") == "true",
		IPNURL:           os.Getenv("IPN_URL"),
		IPNTimeout:       time.Duration(config.GetInt("IPN_TIMEOUT_MS", 5000)) * time.Millisecond,
	}
	addr := config.GetString("GATEWAY_ADDR", "127.0.0.1:9000")

	slog.Info("Payment Gateway starting on "+addr,
		"success_rate", st.SuccessRate,
		"force_code", st.ForceCode,
		"idempotency_check", st.IdempotencyCheck,
		"ipn_url", st.IPNURL)
	if err := http.ListenAndServe(addr, newGateway(st).routes()); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
