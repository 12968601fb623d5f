package domain

type CheckoutStep string

const (
	CheckoutStepCart         CheckoutStep = "cart"
	CheckoutStepShipping     CheckoutStep = "shipping"
	CheckoutStepPayment      CheckoutStep = "payment"
	CheckoutStepConfirmation CheckoutStep = "confirmation"
)

func (s CheckoutStep) Valid() bool {
	switch s {
	case CheckoutStepCart, CheckoutStepShipping, CheckoutStepPayment, CheckoutStepConfirmation:
		return true
	}
	return false
}

type ShippingAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
}

type PaymentType string

const (
	PaymentTypeCard     PaymentType = "card"
	PaymentTypePayPal   PaymentType = "paypal"
	PaymentTypeApplePay PaymentType = "apple_pay"
)

type PaymentMethod struct {
	Type           PaymentType `json:"type"`
	CardNumber     string      `json:"cardNumber,omitempty"`
	ExpiryDate     string      `json:"expiryDate,omitempty"`
	CVV            string      `json:"cvv,omitempty"`
	CardholderName string      `json:"cardholderName,omitempty"`
}

type CheckoutState struct {
	Step            CheckoutStep     `json:"step"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   *PaymentMethod   `json:"paymentMethod,omitempty"`
	IsProcessing    bool             `json:"isProcessing"`
	Error           string           `json:"error,omitempty"`
}

// Masked returns a copy safe to keep on an order: the CVV is dropped and only
// the last four card digits are kept.
func (p PaymentMethod) Masked() PaymentMethod {
	masked := p
	masked.CVV = ""
	if n := len(p.CardNumber); n > 4 {
		masked.CardNumber = "**** **** **** " + p.CardNumber[n-4:]
	}
	return masked
}
