package vnpay

import (
	"net/url"
	"strings"
)

type URLKind int

const (
	URLOther URLKind = iota
	// URLReturn is a loopback navigation carrying the gateway result.
	URLReturn
	// URLDeepLink is the app's custom return scheme.
	URLDeepLink
	// URLBlockedLoopback is a loopback address that is not the return target.
	URLBlockedLoopback
)

func (k URLKind) String() string {
	switch k {
	case URLReturn:
		return "return"
	case URLDeepLink:
		return "deep_link"
	case URLBlockedLoopback:
		return "blocked_loopback"
	default:
		return "other"
	}
}

type Matcher struct {
	loopbackHosts map[string]bool
	returnPath    string
	scheme        string
	schemeHost    string
}

// NewMatcher builds a matcher for the loopback return path and the app
// return scheme (e.g. "app://payment-return").
func NewMatcher(loopbackHosts []string, returnPath, returnScheme string) *Matcher {
	m := &Matcher{
		loopbackHosts: map[string]bool{},
		returnPath:    "/" + strings.Trim(returnPath, "/"),
	}
	for _, h := range loopbackHosts {
		m.loopbackHosts[strings.ToLower(strings.Trim(h, "[]"))] = true
	}
	if u, err := url.Parse(returnScheme); err == nil {
		m.scheme = strings.ToLower(u.Scheme)
		m.schemeHost = strings.ToLower(u.Host)
	}
	return m
}

func (m *Matcher) Classify(rawURL string) URLKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		// still try the prefix forms, a bad escape in the query must not hide a return
		return m.classifyLoose(rawURL)
	}
	scheme := strings.ToLower(u.Scheme)

	if m.scheme != "" && scheme == m.scheme {
		if m.schemeHost == "" || strings.ToLower(u.Host) == m.schemeHost {
			return URLDeepLink
		}
		return URLOther
	}

	if scheme != "http" && scheme != "https" {
		return URLOther
	}
	if !m.loopbackHosts[strings.ToLower(u.Hostname())] {
		return URLOther
	}
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), m.returnPath) && ParseURL(rawURL).ResponseCode() != "" {
		return URLReturn
	}
	return URLBlockedLoopback
}

func (m *Matcher) classifyLoose(rawURL string) URLKind {
	base, _, _ := strings.Cut(rawURL, "?")
	if m.scheme != "" && strings.HasPrefix(strings.ToLower(base), m.scheme+"://"+m.schemeHost) {
		return URLDeepLink
	}
	u, err := url.Parse(base)
	if err != nil || !m.loopbackHosts[strings.ToLower(u.Hostname())] {
		return URLOther
	}
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), m.returnPath) && ParseURL(rawURL).ResponseCode() != "" {
		return URLReturn
	}
	return URLBlockedLoopback
}
