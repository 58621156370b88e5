package paychannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HeadlessBrowser presents a payment page without rendering it: it follows
// redirects one hop at a time, asking the channel before every navigation.
// It is used by the simulator tooling and tests, where the gateway page
// completes on its own.
type HeadlessBrowser struct {
	client  *http.Client
	maxHops int
}

func NewHeadlessBrowser(timeout time.Duration) *HeadlessBrowser {
	return &HeadlessBrowser{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxHops: 10,
	}
}

func (b *HeadlessBrowser) Present(ctx context.Context, ch *Channel) error {
	target := ch.PaymentURL()

	for hop := 0; hop < b.maxHops; hop++ {
		if !ch.ShouldLoad(target) {
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			ch.OnLoadError(target, err.Error())
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			ch.OnLoadError(target, err.Error())
			return nil
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		ch.OnPageLoaded(target)

		if resp.StatusCode < 300 || resp.StatusCode > 399 {
			if resp.StatusCode >= 400 {
				ch.OnLoadError(target, fmt.Sprintf("HTTP %d", resp.StatusCode))
			}
			return nil
		}

		loc, err := resp.Location()
		if err != nil {
			slog.Warn("Redirect without location", "url", target, "status", resp.StatusCode)
			return nil
		}
		target = loc.String()
	}

	return fmt.Errorf("too many redirects from %s", ch.PaymentURL())
}
