package vnpay

import "fmt"

const (
	ParamResponseCode   = "vnp_ResponseCode"
	ParamTxnRef         = "vnp_TxnRef"
	ParamAmount         = "vnp_Amount"
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"
	ParamTransactionNo  = "vnp_TransactionNo"
	ParamOrderInfo      = "vnp_OrderInfo"

	SuccessCode = "00"
)

// GenericFailureMessage is used for codes missing from the table.
const GenericFailureMessage = "Lỗi không xác định"

var responseMessages = map[string]string{
	"07": "Trừ tiền thành công nhưng giao dịch bị nghi ngờ",
	"09": "Thẻ/Tài khoản chưa đăng ký dịch vụ InternetBanking",
	"10": "Xác thực thông tin thẻ/tài khoản không đúng quá 3 lần",
	"11": "Đã hết hạn chờ thanh toán",
	"12": "Thẻ/Tài khoản bị khóa",
	"13": "Nhập sai mật khẩu xác thực giao dịch (OTP)",
	"24": "Khách hàng hủy giao dịch",
	"51": "Tài khoản không đủ số dư",
	"65": "Tài khoản đã vượt quá hạn mức giao dịch trong ngày",
	"75": "Ngân hàng thanh toán đang bảo trì",
	"79": "Nhập sai mật khẩu thanh toán quá số lần quy định",
	"99": "Giao dịch thất bại",
}

// Codes returns every response code with a dedicated message.
func Codes() []string {
	out := make([]string, 0, len(responseMessages))
	for code := range responseMessages {
		out = append(out, code)
	}
	return out
}

// ReasonFor returns the bare message for a non-success code.
func ReasonFor(code string) string {
	if msg, ok := responseMessages[code]; ok {
		return msg
	}
	return GenericFailureMessage
}

// DeclineMessage is the user-facing text for a declined payment.
func DeclineMessage(code string) string {
	if code == "" {
		return GenericFailureMessage
	}
	return fmt.Sprintf("%s (Mã lỗi: %s)", ReasonFor(code), code)
}

func IsSuccess(code string) bool {
	return code == SuccessCode
}
