package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reEmail      = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	rePaymentRef = regexp.MustCompile(`^[A-Za-z0-9_:-]{1,64}$`)
	reReqKey     = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
)

const maxQty = 50

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 50 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// ID parses a positive numeric resource id.
func ID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Qty accepts 1..50 units. Anything else is rejected rather than clamped so a
// purchase never silently changes size.
func Qty(n int) (int, bool) {
	if n < 1 || n > maxQty {
		return 0, false
	}
	return n, true
}

// PaymentRef validates the opaque payment method token.
func PaymentRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, rePaymentRef.MatchString(s)
}

// RequestKey validates an Idempotency-Key header. Empty is allowed.
func RequestKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	return s, reReqKey.MatchString(s)
}

// Status normalises an order status name; the service decides if it exists.
func Status(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s) > 20 {
		return "", false
	}
	return s, true
}

// Days validates a boost duration in days.
func Days(n int) (int, bool) {
	return n, n >= 1 && n <= 30
}

// Password accepts 8..20 characters mixing lower, upper, digit and symbol.
func Password(s string) bool {
	l := len(s)
	if l < 8 || l > 20 {
		return false
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
