package confirmation

import (
	"math/rand/v2"
	"strconv"
	"time"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderID returns "AQ", the last six digits of the unix-millisecond
// timestamp, and three random uppercase alphanumerics.
func NewOrderID(now time.Time) string {
	return newOrderID(now, randomCode)
}

// NewTrackingNumber returns "TRK" followed by nine random uppercase
// alphanumerics.
func NewTrackingNumber() string {
	return newTrackingNumber(randomCode)
}

func newOrderID(now time.Time, code func(int) string) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	return "AQ" + ts + code(3)
}

func newTrackingNumber(code func(int) string) string {
	return "TRK" + code(9)
}

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}
