package billing

import (
	"errors"
	"fmt"
	"regexp"
)

// Environment of the checkout provider
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Plan enum
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// EventName of a checkout lifecycle event
type EventName string

const (
	EventCheckoutLoaded    EventName = "checkout.loaded"
	EventCheckoutCompleted EventName = "checkout.completed"
	EventCheckoutClosed    EventName = "checkout.closed"
)

// Event is delivered to checkout subscribers.
type Event struct {
	Name          EventName      `json:"name"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	CustomData    map[string]any `json:"custom_data,omitempty"`
}

// Request opens one checkout for a single item.
type Request struct {
	PriceID    string
	Quantity   int
	CustomData map[string]any
}

// Session is an opened checkout the user has to complete elsewhere.
type Session struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	URL           string `json:"checkout_url"`
	Token         string `json:"token,omitempty"`
}

// TransactionStatus as reported by the provider.
type TransactionStatus struct {
	ID        string `json:"transaction_id"`
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
}

// ErrorType classifies checkout failures.
type ErrorType string

const (
	ErrorValidation ErrorType = "validation"
	ErrorProvider   ErrorType = "provider"
	ErrorNotReady   ErrorType = "not_ready"
)

var (
	ErrCheckoutNotReady = errors.New("checkout provider is not ready")
	ErrInvalidPriceID   = errors.New("invalid price_id")
)

// CheckoutError is returned by every failed checkout operation.
type CheckoutError struct {
	Type    ErrorType
	Message string
	Details map[string]any
	Err     error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s error: %s", e.Type, e.Message)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

var paddlePriceID = regexp.MustCompile(`^pri_[a-zA-Z0-9]+$`)

// ValidatePaddlePriceID requires the pri_xxx format.
func ValidatePaddlePriceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: price_id is empty", ErrInvalidPriceID)
	}
	if !paddlePriceID.MatchString(id) {
		return fmt.Errorf("%w: %q does not match expected format (pri_xxx)", ErrInvalidPriceID, id)
	}
	return nil
}
