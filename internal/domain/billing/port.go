package billing

import "context"

// Provider is a checkout backend. Prepare is called once by the lifecycle
// service and must succeed before Open is used.
type Provider interface {
	Name() string
	Prepare(ctx context.Context) error
	PriceID(plan Plan) string
	ValidatePriceID(id string) error
	Open(ctx context.Context, req Request) (*Session, error)
	Status(ctx context.Context, transactionID string) (TransactionStatus, error)
}
