package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCorrelationID(t *testing.T) {
	id := GenerateCorrelationID()
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), id)
	assert.Equal(t, "["+id+"] ", LogPrefix(id))
}

func TestGenerateUUID7IsTimeOrdered(t *testing.T) {
	a := GenerateUUID7()
	time.Sleep(2 * time.Millisecond)
	b := GenerateUUID7()
	assert.Less(t, a, b)
}

func TestGenerateTxnRef(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	ref := GenerateTxnRef(now)
	assert.Regexp(t, regexp.MustCompile(`^20240501103000\d{6}$`), ref)
}
