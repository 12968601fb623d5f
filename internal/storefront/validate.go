package storefront

import (
	"regexp"
	"strings"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

// Format checks on shopper input. Presence is not checked here: the checkout
// store accepts partial data and its predicates decide completeness.

var (
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

type fieldErrors map[string]string

func validateAddress(addr domain.ShippingAddress) fieldErrors {
	errs := fieldErrors{}
	if v := strings.TrimSpace(addr.Email); v != "" && !emailPattern.MatchString(v) {
		errs["email"] = "must be a valid email address"
	}
	if v := strings.TrimSpace(addr.Phone); v != "" {
		if n := countDigits(v); n < 10 || n > 15 {
			errs["phone"] = "must have between 10 and 15 digits"
		}
	}
	if v := strings.TrimSpace(addr.ZipCode); v != "" && countDigits(v) < 3 {
		errs["zipCode"] = "must contain at least 3 digits"
	}
	return errs
}

func validatePayment(pm domain.PaymentMethod) fieldErrors {
	errs := fieldErrors{}
	switch pm.Type {
	case domain.PaymentTypeCard:
	case domain.PaymentTypePayPal, domain.PaymentTypeApplePay:
		return errs
	default:
		errs["type"] = "must be one of card, paypal, apple_pay"
		return errs
	}

	if v := stripSeparators(pm.CardNumber); v != "" {
		if n := countDigits(v); n != len(v) || n < 13 || n > 19 {
			errs["cardNumber"] = "must have between 13 and 19 digits"
		}
	}
	if v := strings.TrimSpace(pm.ExpiryDate); v != "" && !expiryPattern.MatchString(v) {
		errs["expiryDate"] = "must be MM/YY"
	}
	if v := strings.TrimSpace(pm.CVV); v != "" && !cvvPattern.MatchString(v) {
		errs["cvv"] = "must have 3 or 4 digits"
	}
	return errs
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}
