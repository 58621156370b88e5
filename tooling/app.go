package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/cart"
	"storefront-checkout/pkg/checkout"
	"storefront-checkout/pkg/config"
	"storefront-checkout/pkg/database"
	"storefront-checkout/pkg/httpclient"
	"storefront-checkout/pkg/models"
	events "storefront-checkout/pkg/nats"
	"storefront-checkout/pkg/offlinequeue"
	"storefront-checkout/pkg/paychannel"
	"storefront-checkout/pkg/retry"
	"storefront-checkout/pkg/session"
	"storefront-checkout/pkg/vnpay"
)

// app holds what every command shares: the local store, the offline queue
// and the event publisher.
type app struct {
	cfg    config.Config
	db     *database.DB
	events *events.Publisher
	hc     *httpclient.Client
	public *api.Client
	queue  *offlinequeue.Queue
}

func newApp(cfg config.Config) (*app, error) {
	db, err := database.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}

	pub, err := events.Connect(cfg.NATSURL)
	if err != nil {
		slog.Warn("Continuing without event publishing", "error", err)
		pub = &events.Publisher{}
	}

	hc := httpclient.NewClient(cfg.BackendBaseURL, cfg.HTTPTimeout)
	public := api.New(hc)

	a := &app{cfg: cfg, db: db, events: pub, hc: hc, public: public}
	a.queue = offlinequeue.New(db, public, pub, offlinequeue.Options{
		MaxAttempts:   cfg.Offline.MaxAttempts,
		MaxAge:        cfg.Offline.MaxAge,
		RetentionDays: cfg.Offline.RetentionDays,
		Attempt:       retry.Policy{MaxAttempts: 1, PerAttemptTimeout: cfg.Reconcile.PerAttemptTimeout},
	})
	return a, nil
}

func (a *app) Close() {
	a.events.Close()
	if err := a.db.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
}

// device is one signed-in app install: its session, cart and checkout
// services over a state store of its own.
type device struct {
	session      *session.Session
	client       *api.Client
	cart         *cart.Cart
	reconciler   *checkout.Reconciler
	orchestrator *checkout.Orchestrator
	history      *checkout.History
}

func (a *app) newDevice(ctx context.Context, store session.StateStore) (*device, error) {
	sess, err := session.Load(ctx, store)
	if err != nil {
		return nil, err
	}
	client := api.New(a.hc.WithTokenSource(sess))
	c := cart.New()

	rec := checkout.NewReconciler(checkout.ReconcilerDeps{
		Confirmer:  client,
		Queue:      a.queue,
		Cart:       c,
		RemoteCart: client,
		State:      store,
		Publisher:  a.events,
	}, checkout.ReconcilerOptions{
		Retry: retry.Policy{
			MaxAttempts:       a.cfg.Reconcile.MaxAttempts,
			BaseDelay:         a.cfg.Reconcile.BaseDelay,
			PerAttemptTimeout: a.cfg.Reconcile.PerAttemptTimeout,
		},
		HashSecret: a.cfg.VNPay.HashSecret,
	})

	orch := checkout.NewOrchestrator(checkout.OrchestratorDeps{
		Preparer: checkout.NewPreparer(client, client, checkout.PreparerOptions{
			ReturnURL:     a.cfg.VNPay.ReturnURL,
			AllowInsecure: a.cfg.VNPay.AllowInsecure,
		}),
		Placer:     client,
		Reconciler: rec,
		Cart:       c,
		RemoteCart: client,
		Browser:    paychannel.NewHeadlessBrowser(a.cfg.HTTPTimeout),
		Channel: paychannel.Config{
			Timeout: a.cfg.Channel.Timeout,
			Grace:   a.cfg.Channel.Grace,
			Matcher: vnpay.NewMatcher(a.cfg.VNPay.LoopbackHosts, a.cfg.VNPay.ReturnPath, a.cfg.VNPay.ReturnScheme),
		},
	})

	return &device{
		session:      sess,
		client:       client,
		cart:         c,
		reconciler:   rec,
		orchestrator: orch,
		history:      checkout.NewHistory(client, a.queue, sess),
	}, nil
}

// signIn registers or logs in through the public client and persists the
// session on the device.
func (d *device) signIn(ctx context.Context, public *api.Client, req api.RegisterRequest, register bool) (models.User, error) {
	var (
		auth models.AuthResult
		err  error
	)
	if register {
		auth, err = public.Register(ctx, req)
	} else {
		auth, err = public.Login(ctx, req.Email, req.Password)
	}
	if err != nil {
		return models.User{}, err
	}
	if auth.Token == "" {
		return models.User{}, fmt.Errorf("backend returned no token for %s", req.Email)
	}
	if err := d.session.Login(ctx, auth.Token, auth.User.ID); err != nil {
		return models.User{}, fmt.Errorf("failed to persist session: %w", err)
	}
	return auth.User, nil
}

// syncCart replaces the local cart with the server copy.
func (d *device) syncCart(ctx context.Context) error {
	items, err := d.client.GetCart(ctx)
	if err != nil {
		return err
	}
	d.cart.Replace(items)
	return nil
}

type lineItem struct {
	ProductID string
	Quantity  int
}

// parseItem reads "productID" or "productID:quantity".
func parseItem(s string) (lineItem, error) {
	id, qty, found := strings.Cut(strings.TrimSpace(s), ":")
	if id == "" {
		return lineItem{}, fmt.Errorf("invalid item %q", s)
	}
	item := lineItem{ProductID: id, Quantity: 1}
	if found {
		n, err := strconv.Atoi(qty)
		if err != nil || n < 1 {
			return lineItem{}, fmt.Errorf("invalid quantity in %q", s)
		}
		item.Quantity = n
	}
	return item, nil
}
