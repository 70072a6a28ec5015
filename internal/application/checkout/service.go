package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const (
	module = "checkout"

	DefaultReadyTimeout = 10 * time.Second
)

// Handler receives checkout lifecycle events.
type Handler func(ctx context.Context, e billing.Event)

// Service owns one checkout provider for the life of the process. Init starts
// provider preparation exactly once; Ready waits for that single outcome.
type Service struct {
	provider     billing.Provider
	logger       logger.ILogger
	readyTimeout time.Duration

	initOnce sync.Once
	ready    chan struct{}
	readyErr error
	cancel   context.CancelFunc

	mu       sync.Mutex
	closed   bool
	nextID   int
	handlers map[int]Handler
	order    []int
}

func NewService(p billing.Provider, log logger.ILogger, readyTimeout time.Duration) *Service {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &Service{
		provider:     p,
		logger:       log,
		readyTimeout: readyTimeout,
		ready:        make(chan struct{}),
		handlers:     map[int]Handler{},
	}
}

// Init starts preparing the provider. Calls after the first are no-ops.
func (s *Service) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.readyTimeout)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()

		done := make(chan error, 1)
		go func() { done <- s.provider.Prepare(pctx) }()

		go func() {
			defer cancel()
			var err error
			select {
			case err = <-done:
			case <-pctx.Done():
				err = fmt.Errorf("%w: %s did not become ready within %s", billing.ErrCheckoutNotReady, s.provider.Name(), s.readyTimeout)
			}
			s.readyErr = err
			close(s.ready)

			if err != nil {
				s.logger.Error(module, "Checkout provider failed to initialize", map[string]interface{}{
					"provider": s.provider.Name(),
					"error":    err,
				})
				return
			}
			s.logger.Info(module, "Checkout provider ready", map[string]interface{}{"provider": s.provider.Name()})
		}()
	})
}

// Ready blocks until the provider resolved. It calls Init when nobody has.
func (s *Service) Ready(ctx context.Context) error {
	if s.isClosed() {
		return notReady(errors.New("checkout service was torn down"))
	}
	s.Init(ctx)
	select {
	case <-s.ready:
		if s.readyErr != nil {
			return notReady(s.readyErr)
		}
		return nil
	case <-ctx.Done():
		return notReady(ctx.Err())
	}
}

// Teardown stops pending preparation and drops every subscriber.
func (s *Service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.handlers = map[int]Handler{}
	s.order = nil
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers h for every later event and returns its removal func.
func (s *Service) Subscribe(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Open starts a checkout for plan. customData travels with the transaction,
// usually carrying the identity.
func (s *Service) Open(ctx context.Context, plan billing.Plan, customData map[string]any) (*billing.Session, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}

	priceID := s.provider.PriceID(plan)
	if err := s.provider.ValidatePriceID(priceID); err != nil {
		s.logger.Warn(module, "Invalid price id", map[string]interface{}{
			"plan":     string(plan),
			"price_id": priceID,
		})
		return nil, &billing.CheckoutError{
			Type:    billing.ErrorValidation,
			Message: err.Error(),
			Details: map[string]any{"plan": string(plan), "price_id": priceID},
			Err:     err,
		}
	}

	sess, err := s.provider.Open(ctx, billing.Request{PriceID: priceID, Quantity: 1, CustomData: customData})
	if err != nil {
		s.logger.Error(module, "Failed to open checkout", map[string]interface{}{
			"provider": s.provider.Name(),
			"price_id": priceID,
			"error":    err,
		})
		return nil, providerError(err)
	}

	s.emit(ctx, billing.Event{
		Name:          billing.EventCheckoutLoaded,
		TransactionID: sess.TransactionID,
		CustomData:    customData,
	})
	return sess, nil
}

// Confirm asks the provider for the transaction status and emits
// checkout.completed or checkout.closed once the transaction is final.
func (s *Service) Confirm(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	if err := s.Ready(ctx); err != nil {
		return billing.TransactionStatus{}, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return billing.TransactionStatus{}, &billing.CheckoutError{
			Type:    billing.ErrorValidation,
			Message: "transaction id is required",
		}
	}

	st, err := s.provider.Status(ctx, transactionID)
	if err != nil {
		return billing.TransactionStatus{}, providerError(err)
	}

	switch {
	case st.Completed:
		s.emit(ctx, billing.Event{Name: billing.EventCheckoutCompleted, TransactionID: st.ID, Status: st.Status})
	case closedStatus(st.Status):
		s.emit(ctx, billing.Event{Name: billing.EventCheckoutClosed, TransactionID: st.ID, Status: st.Status})
	}
	return st, nil
}

func (s *Service) ProviderName() string { return s.provider.Name() }

func (s *Service) emit(ctx context.Context, e billing.Event) {
	s.mu.Lock()
	var hs []Handler
	live := s.order[:0]
	for _, id := range s.order {
		if h, ok := s.handlers[id]; ok {
			hs = append(hs, h)
			live = append(live, id)
		}
	}
	s.order = live
	s.mu.Unlock()

	s.logger.Debug(module, "Checkout event", map[string]interface{}{
		"event":          string(e.Name),
		"transaction_id": e.TransactionID,
		"subscribers":    len(hs),
	})
	for _, h := range hs {
		h(ctx, e)
	}
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func closedStatus(status string) bool {
	switch strings.ToLower(status) {
	case "canceled", "cancelled", "cancel", "expire", "expired", "deny", "failure", "failed":
		return true
	}
	return false
}

func notReady(err error) error {
	if !errors.Is(err, billing.ErrCheckoutNotReady) {
		err = fmt.Errorf("%w: %v", billing.ErrCheckoutNotReady, err)
	}
	return &billing.CheckoutError{Type: billing.ErrorNotReady, Message: err.Error(), Err: err}
}

func providerError(err error) error {
	var ce *billing.CheckoutError
	if errors.As(err, &ce) {
		return ce
	}
	return &billing.CheckoutError{Type: billing.ErrorProvider, Message: err.Error(), Err: err}
}
