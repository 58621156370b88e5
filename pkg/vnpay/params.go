package vnpay

import (
	"net/url"
	"sort"
	"strings"
)

// Params are the flat gateway callback parameters. Only the response code
// and transaction reference are interpreted; the rest pass through.
type Params map[string]string

func (p Params) ResponseCode() string { return p[ParamResponseCode] }
func (p Params) TxnRef() string       { return p[ParamTxnRef] }

// Valid reports whether both required fields are present.
func (p Params) Valid() bool {
	return p.ResponseCode() != "" && p.TxnRef() != ""
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Encode renders p as a query string with sorted keys.
func (p Params) Encode() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[k]))
	}
	return b.String()
}

// ParseQuery decodes key=value pairs. A pair that fails to decode keeps its
// raw text instead of failing the whole parse.
func ParseQuery(raw string) Params {
	out := Params{}
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out[decode(key)] = decode(value)
	}
	return out
}

// ParseURL extracts the query parameters of a full URL, tolerating
// malformed escapes.
func ParseURL(rawURL string) Params {
	_, query, found := strings.Cut(rawURL, "?")
	if !found {
		return Params{}
	}
	query, _, _ = strings.Cut(query, "#")
	return ParseQuery(query)
}

func decode(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}
