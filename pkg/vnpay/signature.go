package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

var ErrSignatureMismatch = errors.New("vnpay: secure hash mismatch")

// hashData is the canonical string the gateway signs: vnp_* params sorted by
// key, values query-escaped, excluding the hash fields themselves.
func hashData(p Params) string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if !strings.HasPrefix(k, "vnp_") || k == ParamSecureHash || k == ParamSecureHashType || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(p[k]))
	}
	return strings.Join(parts, "&")
}

func Sign(p Params, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(hashData(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks vnp_SecureHash. It returns ErrSignatureMismatch when the hash
// is missing or wrong.
func Verify(p Params, secret string) error {
	got := strings.ToLower(p[ParamSecureHash])
	if got == "" {
		return ErrSignatureMismatch
	}
	want := Sign(p, secret)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrSignatureMismatch
	}
	return nil
}

// BuildPaymentURL signs p and appends it to the gateway page URL.
func BuildPaymentURL(baseURL string, p Params, secret string) string {
	signed := p.Clone()
	delete(signed, ParamSecureHash)
	delete(signed, ParamSecureHashType)
	query := hashData(signed)
	return baseURL + "?" + query + "&" + ParamSecureHash + "=" + Sign(signed, secret)
}
