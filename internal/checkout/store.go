// Package checkout holds the state of a shopper's checkout wizard.
//
// The step-gating predicates are advisory. SetStep accepts any step, and it is
// up to the caller to consult CanProceedToPayment or CanProceedToConfirmation
// before moving forward.
package checkout

import (
	"strings"
	"sync"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

type Store struct {
	mu    sync.RWMutex
	state domain.CheckoutState
}

func New() *Store {
	return &Store{state: initialState()}
}

func initialState() domain.CheckoutState {
	return domain.CheckoutState{Step: domain.CheckoutStepCart}
}

func (s *Store) State() domain.CheckoutState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state
	if state.ShippingAddress != nil {
		addr := *state.ShippingAddress
		state.ShippingAddress = &addr
	}
	if state.PaymentMethod != nil {
		pm := *state.PaymentMethod
		state.PaymentMethod = &pm
	}
	return state
}

func (s *Store) SetStep(step domain.CheckoutStep) {
	s.mu.Lock()
	s.state.Step = step
	s.mu.Unlock()
}

func (s *Store) SetShippingAddress(addr domain.ShippingAddress) {
	s.mu.Lock()
	s.state.ShippingAddress = &addr
	s.mu.Unlock()
}

func (s *Store) SetPaymentMethod(pm domain.PaymentMethod) {
	s.mu.Lock()
	s.state.PaymentMethod = &pm
	s.mu.Unlock()
}

func (s *Store) SetProcessing(processing bool) {
	s.mu.Lock()
	s.state.IsProcessing = processing
	s.mu.Unlock()
}

// SetError records a user-facing error message. An empty message clears it.
func (s *Store) SetError(message string) {
	s.mu.Lock()
	s.state.Error = message
	s.mu.Unlock()
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.state = initialState()
	s.mu.Unlock()
}

// CanProceedToPayment reports whether the shipping address has every required
// field. Only presence is checked; format is validated before it gets here.
func (s *Store) CanProceedToPayment() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return addressComplete(s.state.ShippingAddress)
}

func (s *Store) CanProceedToConfirmation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return addressComplete(s.state.ShippingAddress) && paymentComplete(s.state.PaymentMethod)
}

func addressComplete(addr *domain.ShippingAddress) bool {
	if addr == nil {
		return false
	}
	return present(addr.FirstName, addr.LastName, addr.Email, addr.Address, addr.City, addr.ZipCode)
}

func paymentComplete(pm *domain.PaymentMethod) bool {
	if pm == nil || pm.Type == "" {
		return false
	}
	if pm.Type == domain.PaymentTypeCard {
		return present(pm.CardNumber, pm.ExpiryDate, pm.CVV, pm.CardholderName)
	}
	return true
}

func present(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
