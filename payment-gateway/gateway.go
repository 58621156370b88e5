package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storefront-checkout/pkg/httpclient"
	"storefront-checkout/pkg/utils"
	"storefront-checkout/pkg/vnpay"
)

const payPagePath = "/paymentv2/vpcpay.html"

var declineCodes = []string{"24", "51", "65", "75", "99"}

type gatewaySettings struct {
	HashSecret string
	// SuccessRate is the percentage of payments answered with code 00.
	SuccessRate int
	// ForceCode overrides the random outcome when set.
	ForceCode        string
	IdempotencyCheck bool
	IPNURL           string
	IPNTimeout       time.Duration
}

type transaction struct {
	TransactionNo string
	ResponseCode  string
	PayDate       string
}

type gateway struct {
	cfg gatewaySettings
	ipn *httpclient.Client
	// ipnPath is the path of cfg.IPNURL, requested verbatim.
	ipnPath string

	mu     sync.Mutex
	rng    *rand.Rand
	nextNo int
	paid   map[string]transaction
}

func newGateway(cfg gatewaySettings) *gateway {
	if cfg.IPNTimeout <= 0 {
		cfg.IPNTimeout = 5 * time.Second
	}
	g := &gateway{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		nextNo: 14000000,
		paid:   map[string]transaction{},
	}
	if cfg.IPNURL != "" {
		if u, err := url.Parse(cfg.IPNURL); err == nil && u.Host != "" {
			g.ipn = httpclient.NewClient(u.Scheme+"://"+u.Host, cfg.IPNTimeout)
			g.ipnPath = u.Path
		} else {
			slog.Warn("Ignoring invalid IPN URL", "ipn_url", cfg.IPNURL)
		}
	}
	return g
}

func (g *gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthCheck)
	r.Get(payPagePath, g.pay)

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// pick must be called with g.mu held.
func (g *gateway) pick() string {
	if g.cfg.ForceCode != "" {
		return g.cfg.ForceCode
	}
	if g.rng.Intn(100) < g.cfg.SuccessRate {
		return vnpay.SuccessCode
	}
	return declineCodes[g.rng.Intn(len(declineCodes))]
}

// settle decides the outcome of a payment attempt. With the idempotency
// check on, a transaction reference that was already paid gets its first
// result back.
func (g *gateway) settle(logPrefix, txnRef string) transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.IdempotencyCheck {
		if prev, found := g.paid[txnRef]; found {
			slog.Info(logPrefix+"Gateway idempotency: replaying previous result", "txn_ref", txnRef, "response_code", prev.ResponseCode)
			return prev
		}
	}

	g.nextNo++
	t := transaction{
		TransactionNo: strconv.Itoa(g.nextNo),
		ResponseCode:  g.pick(),
		PayDate:       time.Now().Format("20060102150405"),
	}
	if vnpay.IsSuccess(t.ResponseCode) {
		g.paid[txnRef] = t
	}
	return t
}

func (g *gateway) pay(w http.ResponseWriter, r *http.Request) {
	logPrefix := utils.LogPrefix(utils.GenerateCorrelationID())
	req := vnpay.ParseQuery(r.URL.RawQuery)

	slog.Info(logPrefix+"Payment page requested", "txn_ref", req.TxnRef(), "amount", req[vnpay.ParamAmount])

	if g.cfg.HashSecret != "" {
		if err := vnpay.Verify(req, g.cfg.HashSecret); err != nil {
			slog.Warn(logPrefix+"Rejected payment request", "txn_ref", req.TxnRef(), "error", err)
			http.Error(w, "Invalid signature", http.StatusBadRequest)
			return
		}
	}
	returnURL := req["vnp_ReturnUrl"]
	if req.TxnRef() == "" || returnURL == "" {
		http.Error(w, "Missing vnp_TxnRef or vnp_ReturnUrl", http.StatusBadRequest)
		return
	}

	t := g.settle(logPrefix, req.TxnRef())
	result := vnpay.Params{
		vnpay.ParamAmount:        req[vnpay.ParamAmount],
		"vnp_BankCode":           "NCB",
		vnpay.ParamOrderInfo:     req[vnpay.ParamOrderInfo],
		"vnp_PayDate":            t.PayDate,
		vnpay.ParamResponseCode:  t.ResponseCode,
		"vnp_TmnCode":            req["vnp_TmnCode"],
		vnpay.ParamTransactionNo: t.TransactionNo,
		vnpay.ParamTxnRef:        req.TxnRef(),
	}
	slog.Info(logPrefix+"Payment settled", "txn_ref", req.TxnRef(), "response_code", t.ResponseCode, "transaction_no", t.TransactionNo)

	target := vnpay.BuildPaymentURL(returnURL, result, g.cfg.HashSecret)
	if g.ipn != nil {
		go g.notify(logPrefix, vnpay.ParseURL(target))
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// notify delivers the server-to-server IPN. The reply is only logged; the
// shopper's return redirect is the path under test.
func (g *gateway) notify(logPrefix string, params vnpay.Params) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.IPNTimeout)
	defer cancel()

	var reply struct {
		RspCode string `json:"RspCode"`
		Message string `json:"Message"`
	}
	if err := g.ipn.DoRawQuery(ctx, g.ipnPath, params.Encode(), &reply); err != nil {
		slog.Warn(logPrefix+"IPN delivery failed", "txn_ref", params.TxnRef(), "error", err)
		return
	}
	slog.Info(logPrefix+"IPN delivered", "txn_ref", params.TxnRef(), "rsp_code", reply.RspCode, "message", reply.Message)
}
