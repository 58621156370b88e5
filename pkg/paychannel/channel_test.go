package paychannel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/pkg/vnpay"
)

const (
	returnOK       = "http://localhost:8000/payment/vnpay/return?vnp_ResponseCode=00&vnp_TxnRef=T1&vnp_Amount=23000000"
	returnCancel   = "http://localhost:8000/payment/vnpay/return?vnp_ResponseCode=24&vnp_TxnRef=T1"
	deepLinkOK     = "app://payment-return?vnp_ResponseCode=00&vnp_TxnRef=T1"
	gatewayPageURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=T1"
)

func testConfig(grace, timeout time.Duration) Config {
	return Config{
		Timeout: timeout,
		Grace:   grace,
		Matcher: vnpay.NewMatcher([]string{"localhost"}, "/payment/vnpay/return", "app://payment-return"),
	}
}

func collect(t *testing.T, ch *Channel) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("channel did not finish")
			return out
		}
	}
}

func returns(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == EventReturn {
			out = append(out, ev)
		}
	}
	return out
}

func TestNavigationAndLoadErrorAreDeduplicated(t *testing.T) {
	ch := Open(context.Background(), testConfig(50*time.Millisecond, time.Second), gatewayPageURL)

	assert.True(t, ch.ShouldLoad(gatewayPageURL))
	ch.OnPageLoaded(gatewayPageURL)
	assert.False(t, ch.ShouldLoad(returnOK))
	ch.OnLoadError(returnOK, "net::ERR_CONNECTION_REFUSED")
	ch.OnDeepLink(deepLinkOK)

	events := collect(t, ch)
	ret := returns(events)
	require.Len(t, ret, 1)
	assert.Equal(t, SignalNavigation, ret[0].Signal)
	assert.Equal(t, "T1", ret[0].Params.TxnRef())
	assert.True(t, ret[0].Success())
	assert.Equal(t, StateReturnSuccess, ch.State())

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ret[0].Params, final.Params)
}

func TestLoadErrorExtractsParamsFromFailedURL(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)

	ch.OnPageLoaded(gatewayPageURL)
	ch.OnLoadError(returnCancel+"&vnp_OrderInfo=%E0%A4%A", "net::ERR_CONNECTION_REFUSED")

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventReturn, final.Kind)
	assert.Equal(t, SignalLoadError, final.Signal)
	assert.Equal(t, "24", final.Params.ResponseCode())
	assert.Equal(t, "%E0%A4%A", final.Params["vnp_OrderInfo"])
	assert.False(t, final.Success())
	assert.Equal(t, StateReturnError, ch.State())
}

func TestDeepLinkBackupPath(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)

	ch.OnDeepLink("https://example.com/not-a-deeplink")
	ch.OnDeepLink(deepLinkOK)

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SignalDeepLink, final.Signal)
	assert.True(t, final.Success())
}

func TestDeepLinkWithoutCodeIsIgnored(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)

	assert.False(t, ch.ShouldLoad("app://payment-return"))
	ch.OnDeepLink(deepLinkOK)

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, EventInfo, events[0].Kind)
	assert.Equal(t, EventReturn, events[1].Kind)
}

func TestBlockedLoopbackNavigation(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)
	defer ch.Close()

	assert.False(t, ch.ShouldLoad("http://localhost:8000/admin"))
	assert.True(t, ch.ShouldLoad("https://bank.example.com/otp"))

	select {
	case ev := <-ch.Events():
		assert.Equal(t, EventInfo, ev.Kind)
		assert.Equal(t, "http://localhost:8000/admin", ev.URL)
	case <-time.After(time.Second):
		t.Fatal("expected info event")
	}
	assert.False(t, ch.State().Terminal())
}

func TestTimeoutStartsWhenActive(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, 30*time.Millisecond), gatewayPageURL)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateLoading, ch.State())

	ch.OnPageLoaded(gatewayPageURL)

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventTimedOut, final.Kind)
	assert.Equal(t, StateTimedOut, ch.State())
}

func TestUserCloseCancels(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)
	ch.OnPageLoaded(gatewayPageURL)
	ch.Close()

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, final.Kind)
	assert.False(t, ch.ShouldLoad(gatewayPageURL))
	assert.Equal(t, BackIgnore, ch.Back(true))
}

func TestCloseDuringGraceIsIgnored(t *testing.T) {
	ch := Open(context.Background(), testConfig(50*time.Millisecond, time.Second), gatewayPageURL)
	ch.ShouldLoad(returnOK)
	time.Sleep(10 * time.Millisecond)
	ch.Close()

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventReturn, final.Kind)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Open(ctx, testConfig(0, time.Second), gatewayPageURL)
	cancel()

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, final.Kind)
}

func TestContextCancelledAfterDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Open(ctx, testConfig(time.Second, 5*time.Second), gatewayPageURL)
	ch.ShouldLoad(returnOK)
	require.Eventually(t, func() bool { return ch.State() == StateReturnSuccess }, time.Second, 5*time.Millisecond)

	start := time.Now()
	cancel()

	select {
	case <-ch.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("channel did not finish after cancel")
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventReturn, final.Kind)
	assert.Equal(t, "T1", final.Params.TxnRef())
	assert.Equal(t, "00", final.Params.ResponseCode())
}

func TestBackAction(t *testing.T) {
	ch := Open(context.Background(), testConfig(0, time.Second), gatewayPageURL)
	defer ch.Close()

	assert.Equal(t, BackNavigate, ch.Back(true))
	assert.Equal(t, BackConfirmCancel, ch.Back(false))
}

func TestHeadlessBrowserFollowsGatewayRedirect(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pay":
			http.Redirect(w, r, "/otp", http.StatusFound)
		case "/otp":
			http.Redirect(w, r, returnOK, http.StatusFound)
		}
	}))
	defer gateway.Close()

	ch := Open(context.Background(), testConfig(0, time.Second), gateway.URL+"/pay")
	require.NoError(t, NewHeadlessBrowser(time.Second).Present(context.Background(), ch))

	final, err := ch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventReturn, final.Kind)
	assert.Equal(t, SignalNavigation, final.Signal)
	assert.Equal(t, "T1", final.Params.TxnRef())
}

func TestHeadlessBrowserReportsUnreachablePage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ch := Open(context.Background(), testConfig(0, time.Second), srv.URL+"/pay")
	defer ch.Close()

	require.NoError(t, NewHeadlessBrowser(time.Second).Present(context.Background(), ch))

	select {
	case ev := <-ch.Events():
		assert.Equal(t, EventInfo, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected info event")
	}
}
