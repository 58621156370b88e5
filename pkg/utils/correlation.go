package utils

import "crypto/rand"

const (
	correlationCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	correlationIDLen   = 6
)

// GenerateCorrelationID returns a short id used to prefix log lines of one
// checkout session or queue pass.
func GenerateCorrelationID() string {
	var buf [correlationIDLen]byte
	rand.Read(buf[:])
	for i, b := range buf {
		buf[i] = correlationCharset[int(b)%len(correlationCharset)]
	}
	return string(buf[:])
}

func LogPrefix(correlationID string) string {
	return "[" + correlationID + "] "
}
