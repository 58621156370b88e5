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

	st := settings{
		IdempotencyCheck:  os.Getenv("BACKEND_IDEMPOTENCY_CHECK") == "true",
		ReturnFailureRate: config.GetInt("RETURN_FAILURE_RATE", 0),
		ReturnLatency:     time.Duration(config.GetInt("RETURN_LATENCY_MS", 200)) * time.Millisecond,
		TempOrderTTL:      time.Duration(config.GetInt("TEMP_ORDER_TTL_MINUTES", 15)) * time.Minute,
		TmnCode:           cfg.VNPay.TmnCode,
		HashSecret:        cfg.VNPay.HashSecret,
		GatewayURL:        cfg.VNPay.BaseURL,
		ReturnURL:         cfg.VNPay.ReturnURL,
	}

	slog.Info("Storefront Backend configuration",
		"idempotency_check", st.IdempotencyCheck,
		"return_failure_rate", st.ReturnFailureRate,
		"return_latency", st.ReturnLatency,
		"gateway_url", st.GatewayURL)

	srv := newServer(st)
	port := config.GetString("BACKEND_PORT", "8000")

	slog.Info("Storefront Backend starting on port " + port)
	if err := http.ListenAndServe(":"+port, srv.routes()); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
