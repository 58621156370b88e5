package vnpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclineMessageTable(t *testing.T) {
	seen := map[string]string{}
	for _, code := range Codes() {
		msg := DeclineMessage(code)
		require.NotEmpty(t, ReasonFor(code), "code %s", code)
		assert.NotEqual(t, GenericFailureMessage, ReasonFor(code), "code %s", code)
		if other, dup := seen[ReasonFor(code)]; dup {
			t.Errorf("codes %s and %s share message %q", code, other, msg)
		}
		seen[ReasonFor(code)] = code
	}
	assert.Contains(t, Codes(), "24")
	assert.Contains(t, Codes(), "51")
	assert.Contains(t, Codes(), "65")
	assert.Contains(t, Codes(), "75")
	assert.Contains(t, Codes(), "99")
}

func TestDeclineMessage(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"24", "Khách hàng hủy giao dịch (Mã lỗi: 24)"},
		{"51", "Tài khoản không đủ số dư (Mã lỗi: 51)"},
		{"42", "Lỗi không xác định (Mã lỗi: 42)"},
		{"", "Lỗi không xác định"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, DeclineMessage(tt.code))
		})
	}
	assert.False(t, IsSuccess("42"))
	assert.True(t, IsSuccess("00"))
}

func TestParseQueryFallsBackToRawValue(t *testing.T) {
	p := ParseQuery("?vnp_ResponseCode=00&vnp_TxnRef=123&vnp_OrderInfo=Thanh+toan%20don&bad=%zz&flag&=x")

	assert.Equal(t, "00", p.ResponseCode())
	assert.Equal(t, "123", p.TxnRef())
	assert.Equal(t, "Thanh toan don", p["vnp_OrderInfo"])
	assert.Equal(t, "%zz", p["bad"])
	assert.Equal(t, "", p["flag"])
	assert.True(t, p.Valid())
}

func TestParseURL(t *testing.T) {
	p := ParseURL("http://localhost:8000/payment/vnpay/return?vnp_ResponseCode=24&vnp_TxnRef=9#frag")
	assert.Equal(t, "24", p.ResponseCode())
	assert.Equal(t, "9", p.TxnRef())

	assert.Empty(t, ParseURL("http://localhost:8000/"))
	assert.False(t, ParseURL("app://payment-return?vnp_TxnRef=1").Valid())
}

func TestMatcherClassify(t *testing.T) {
	m := NewMatcher([]string{"localhost", "127.0.0.1", "::1", "10.0.2.2"}, "/payment/vnpay/return", "app://payment-return")

	tests := []struct {
		url  string
		want URLKind
	}{
		{"http://localhost:8000/payment/vnpay/return?vnp_ResponseCode=00&vnp_TxnRef=1", URLReturn},
		{"http://127.0.0.1:3000/api/payment/vnpay/return?vnp_ResponseCode=24", URLReturn},
		{"http://[::1]:3000/payment/vnpay/return?vnp_ResponseCode=24", URLReturn},
		{"http://10.0.2.2:3000/payment/vnpay/return/?vnp_ResponseCode=24&bad=%zz", URLReturn},
		{"http://localhost:8000/payment/vnpay/return?vnp_TxnRef=1", URLBlockedLoopback},
		{"http://localhost:8000/admin", URLBlockedLoopback},
		{"app://payment-return?vnp_ResponseCode=00&vnp_TxnRef=1", URLDeepLink},
		{"app://other", URLOther},
		{"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_Amount=1", URLOther},
		{"https://example.com/payment/vnpay/return?vnp_ResponseCode=00", URLOther},
		{"about:blank", URLOther},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Classify(tt.url))
		})
	}
}

func TestSignAndVerify(t *testing.T) {
	p := Params{
		ParamTxnRef:       "20240501103000123456",
		ParamAmount:       "23000000",
		ParamResponseCode: "00",
		ParamOrderInfo:    "Thanh toan don hang",
		"vnp_BankCode":    "NCB",
		"unrelated":       "ignored",
	}
	p[ParamSecureHash] = Sign(p, "secret")

	require.NoError(t, Verify(p, "secret"))
	assert.ErrorIs(t, Verify(p, "other"), ErrSignatureMismatch)

	tampered := p.Clone()
	tampered[ParamAmount] = "1"
	assert.ErrorIs(t, Verify(tampered, "secret"), ErrSignatureMismatch)

	delete(tampered, ParamSecureHash)
	assert.ErrorIs(t, Verify(tampered, "secret"), ErrSignatureMismatch)
}

func TestBuildPaymentURLIsVerifiable(t *testing.T) {
	u := BuildPaymentURL("https://gateway.test/pay", Params{
		ParamTxnRef:    "1",
		ParamAmount:    "100",
		ParamOrderInfo: "don hang 1",
	}, "secret")

	p := ParseURL(u)
	assert.Equal(t, "don hang 1", p[ParamOrderInfo])
	require.NoError(t, Verify(p, "secret"))
}
