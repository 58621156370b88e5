package paychannel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront-checkout/pkg/utils"
	"storefront-checkout/pkg/vnpay"
)

type State int

const (
	StateLoading State = iota
	StateActive
	StateReturnSuccess
	StateReturnError
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateReturnSuccess:
		return "return_success"
	case StateReturnError:
		return "return_error"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s >= StateReturnSuccess
}

// Signal identifies which browser event revealed the gateway result.
type Signal int

const (
	SignalNone Signal = iota
	SignalNavigation
	SignalLoadError
	SignalDeepLink
)

func (s Signal) String() string {
	switch s {
	case SignalNavigation:
		return "navigation"
	case SignalLoadError:
		return "load_error"
	case SignalDeepLink:
		return "deep_link"
	default:
		return "none"
	}
}

type EventKind int

const (
	EventActive EventKind = iota
	EventInfo
	EventReturn
	EventCancelled
	EventTimedOut
)

type Event struct {
	Kind    EventKind
	State   State
	Signal  Signal
	Params  vnpay.Params
	URL     string
	Message string
}

// Success reports whether a return event carries the gateway success code.
func (e Event) Success() bool {
	return e.Kind == EventReturn && vnpay.IsSuccess(e.Params.ResponseCode())
}

func (e Event) Terminal() bool {
	return e.Kind == EventReturn || e.Kind == EventCancelled || e.Kind == EventTimedOut
}

type BackAction int

const (
	// BackIgnore: the channel already finished.
	BackIgnore BackAction = iota
	// BackNavigate: let the page go back in its own history.
	BackNavigate
	// BackConfirmCancel: ask the user before calling Close.
	BackConfirmCancel
)

type Config struct {
	Timeout time.Duration
	Grace   time.Duration
	Matcher *vnpay.Matcher
}

// Browser hosts a channel's page and reports its navigation to the channel.
type Browser interface {
	Present(ctx context.Context, ch *Channel) error
}

type msgKind int

const (
	msgSignal msgKind = iota
	msgLoaded
	msgInfo
	msgClose
)

type message struct {
	kind   msgKind
	signal Signal
	url    string
	text   string
}

// Channel is one payment page session. A single goroutine owns its state;
// the browser-facing methods only post messages to it. The first signal that
// yields callback parameters wins and every later one is dropped.
type Channel struct {
	cfg        Config
	paymentURL string
	id         string
	logPrefix  string

	inbox  chan message
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	state    State
	detected bool
	final    Event
}

// Open starts the channel actor for paymentURL. Cancelling ctx cancels the
// session unless a result was already detected.
func Open(ctx context.Context, cfg Config, paymentURL string) *Channel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	id := utils.GenerateUUID7()
	c := &Channel{
		cfg:        cfg,
		paymentURL: paymentURL,
		id:         id,
		logPrefix:  utils.LogPrefix(id[len(id)-6:]),
		inbox:      make(chan message, 16),
		events:     make(chan Event, 32),
		done:       make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Channel) ID() string         { return c.id }
func (c *Channel) PaymentURL() string { return c.paymentURL }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events streams every event; it is closed after the terminal one.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed once the channel reached a terminal event.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Wait blocks until the terminal event or ctx is done.
func (c *Channel) Wait(ctx context.Context) (Event, error) {
	select {
	case <-c.done:
		return c.final, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// ShouldLoad decides whether the browser may load rawURL. Return targets
// and the app scheme are consumed here; other loopback targets are blocked.
func (c *Channel) ShouldLoad(rawURL string) bool {
	if c.finishedOrDetected() {
		return false
	}
	switch c.cfg.Matcher.Classify(rawURL) {
	case vnpay.URLReturn:
		c.post(message{kind: msgSignal, signal: SignalNavigation, url: rawURL})
		return false
	case vnpay.URLDeepLink:
		c.post(message{kind: msgSignal, signal: SignalDeepLink, url: rawURL})
		return false
	case vnpay.URLBlockedLoopback:
		c.post(message{kind: msgInfo, url: rawURL, text: "Đã chặn truy cập tới địa chỉ nội bộ"})
		return false
	default:
		return true
	}
}

// OnPageLoaded reports a finished page load.
func (c *Channel) OnPageLoaded(rawURL string) {
	if c.cfg.Matcher.Classify(rawURL) == vnpay.URLReturn {
		c.post(message{kind: msgSignal, signal: SignalNavigation, url: rawURL})
		return
	}
	c.post(message{kind: msgLoaded, url: rawURL})
}

// OnLoadError reports a failed load. A failing return URL is expected (the
// loopback target is unreachable from the device) and still carries the
// result in its query.
func (c *Channel) OnLoadError(rawURL, description string) {
	if c.cfg.Matcher.Classify(rawURL) == vnpay.URLReturn {
		c.post(message{kind: msgSignal, signal: SignalLoadError, url: rawURL})
		return
	}
	c.post(message{kind: msgInfo, url: rawURL, text: description})
}

// OnDeepLink reports an app-scheme link delivered by the OS.
func (c *Channel) OnDeepLink(rawURL string) {
	if c.cfg.Matcher.Classify(rawURL) != vnpay.URLDeepLink {
		return
	}
	c.post(message{kind: msgSignal, signal: SignalDeepLink, url: rawURL})
}

// Close is the user's explicit cancel.
func (c *Channel) Close() {
	c.post(message{kind: msgClose})
}

// Back decides what the device back button does.
func (c *Channel) Back(canGoBack bool) BackAction {
	if c.finishedOrDetected() {
		return BackIgnore
	}
	if canGoBack {
		return BackNavigate
	}
	return BackConfirmCancel
}

func (c *Channel) finishedOrDetected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detected || c.state.Terminal()
}

func (c *Channel) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn(c.logPrefix+"Payment channel event dropped, consumer is not reading", "kind", ev.Kind)
	}
}

func (c *Channel) finish(ev Event) {
	c.setState(ev.State)
	c.final = ev
	c.emit(ev)
	close(c.done)
	close(c.events)
}

func (c *Channel) run(ctx context.Context) {
	var (
		timeout <-chan time.Time
		grace   <-chan time.Time
		result  Event
		timer   *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	slog.Info(c.logPrefix+"Payment channel opened", "session", c.id)

	for {
		select {
		case <-ctx.Done():
			if c.isDetected() {
				// a detected result is still delivered, ctx only stops the wait
				c.finish(result)
				return
			}
			slog.Info(c.logPrefix + "Payment channel cancelled by context")
			c.finish(Event{Kind: EventCancelled, State: StateCancelled, Message: "Đã hủy thanh toán"})
			return

		case m := <-c.inbox:
			switch m.kind {
			case msgLoaded:
				if c.State() == StateLoading && !c.isDetected() {
					c.setState(StateActive)
					timer = time.NewTimer(c.cfg.Timeout)
					timeout = timer.C
					c.emit(Event{Kind: EventActive, State: StateActive, URL: m.url})
				}

			case msgInfo:
				if !c.isDetected() {
					slog.Info(c.logPrefix+"Payment channel notice", "url", m.url, "message", m.text)
					c.emit(Event{Kind: EventInfo, State: c.State(), URL: m.url, Message: m.text})
				}

			case msgClose:
				if c.isDetected() {
					continue
				}
				slog.Info(c.logPrefix + "Payment channel closed by user")
				c.finish(Event{Kind: EventCancelled, State: StateCancelled, Message: "Đã hủy thanh toán"})
				return

			case msgSignal:
				// the flag is checked before any parsing
				if c.isDetected() {
					slog.Info(c.logPrefix+"Duplicate return signal ignored", "signal", m.signal)
					continue
				}
				params := vnpay.ParseURL(m.url)
				if params.ResponseCode() == "" {
					c.emit(Event{Kind: EventInfo, State: c.State(), URL: m.url, Message: "Liên kết trả về thiếu mã kết quả"})
					continue
				}

				state := StateReturnError
				if vnpay.IsSuccess(params.ResponseCode()) {
					state = StateReturnSuccess
				}
				c.mu.Lock()
				c.detected = true
				c.state = state
				c.mu.Unlock()

				slog.Info(c.logPrefix+"Payment return detected", "signal", m.signal, "txn_ref", params.TxnRef(), "response_code", params.ResponseCode())

				timeout = nil
				result = Event{Kind: EventReturn, State: state, Signal: m.signal, Params: params, URL: m.url}
				if c.cfg.Grace == 0 {
					c.finish(result)
					return
				}
				grace = time.After(c.cfg.Grace)
			}

		case <-timeout:
			slog.Warn(c.logPrefix+"Payment channel timed out", "timeout", c.cfg.Timeout)
			c.finish(Event{Kind: EventTimedOut, State: StateTimedOut, Message: "Hết thời gian chờ thanh toán"})
			return

		case <-grace:
			c.finish(result)
			return
		}
	}
}

func (c *Channel) isDetected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detected
}
