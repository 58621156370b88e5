package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID7 returns a time-ordered id, so records sort by creation time.
func GenerateUUID7() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// GenerateTxnRef returns a gateway transaction reference: digits only, unique
// per call within a process.
func GenerateTxnRef(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s%06d", now.Format("20060102150405"), int(u.ID()%1000000))
}
