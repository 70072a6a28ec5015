package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/infra/leaseapi"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const (
	module = "checkout"

	paddleSandboxSellerID = 48907
)

// Backend creates and reads Paddle transactions on the lease backend.
type Backend interface {
	CreateCheckout(ctx context.Context, in leaseapi.CheckoutRequest) (*leaseapi.CheckoutResponse, error)
	GetTransaction(ctx context.Context, id string) (*leaseapi.Transaction, error)
}

type PaddleConfig struct {
	// Env is "sandbox" or "production"; empty means decide from APIBaseURL.
	Env            string
	APIBaseURL     string
	SandboxToken   string
	LiveToken      string
	SandboxPriceID string
	LivePriceID    string
}

// PaddleProvider opens Paddle checkouts through the lease backend.
type PaddleProvider struct {
	cfg     PaddleConfig
	backend Backend
	logger  logger.ILogger
}

func NewPaddleProvider(cfg PaddleConfig, backend Backend, log logger.ILogger) *PaddleProvider {
	return &PaddleProvider{cfg: cfg, backend: backend, logger: log}
}

func (p *PaddleProvider) Name() string { return "paddle" }

// Sandbox follows Env when set, otherwise a local API host means sandbox.
func (p *PaddleProvider) Sandbox() bool {
	if p.cfg.Env != "" {
		return p.cfg.Env == string(billing.EnvSandbox)
	}
	return isLocalhost(p.cfg.APIBaseURL)
}

func (p *PaddleProvider) Environment() billing.Environment {
	if p.Sandbox() {
		return billing.EnvSandbox
	}
	return billing.EnvProduction
}

func (p *PaddleProvider) Token() string {
	if p.Sandbox() {
		return p.cfg.SandboxToken
	}
	return p.cfg.LiveToken
}

// SellerID is only known for the sandbox account.
func (p *PaddleProvider) SellerID() (int, bool) {
	if p.Sandbox() {
		return paddleSandboxSellerID, true
	}
	return 0, false
}

func (p *PaddleProvider) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := p.Token()
	if token == "" {
		return fmt.Errorf("paddle %s client token is not configured", p.Environment())
	}
	details := map[string]interface{}{
		"environment": string(p.Environment()),
		"token":       mask(token),
	}
	if id, ok := p.SellerID(); ok {
		details["seller_id"] = id
	}
	p.logger.Info(module, "Paddle initialized", details)
	return nil
}

// PriceID picks the environment's price. Both plans share one price id.
func (p *PaddleProvider) PriceID(plan billing.Plan) string {
	if p.Sandbox() {
		return p.cfg.SandboxPriceID
	}
	return p.cfg.LivePriceID
}

func (p *PaddleProvider) ValidatePriceID(id string) error {
	return billing.ValidatePaddlePriceID(id)
}

func (p *PaddleProvider) Open(ctx context.Context, req billing.Request) (*billing.Session, error) {
	userID, _ := req.CustomData["user_id"].(string)
	resp, err := p.backend.CreateCheckout(ctx, leaseapi.CheckoutRequest{
		PriceID:     req.PriceID,
		Quantity:    req.Quantity,
		UserID:      userID,
		Environment: string(p.Environment()),
		CustomData:  req.CustomData,
	})
	if err != nil {
		var apiErr *leaseapi.APIError
		if errors.As(err, &apiErr) {
			return nil, &billing.CheckoutError{
				Type:    billing.ErrorProvider,
				Message: apiErr.Message,
				Details: map[string]any{"status": apiErr.StatusCode, "request_id": apiErr.RequestID},
				Err:     err,
			}
		}
		return nil, err
	}
	return &billing.Session{
		Provider:      p.Name(),
		TransactionID: resp.TransactionID,
		URL:           resp.CheckoutURL,
	}, nil
}

func (p *PaddleProvider) Status(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	tx, err := p.backend.GetTransaction(ctx, transactionID)
	if err != nil {
		return billing.TransactionStatus{}, err
	}
	st := strings.ToLower(tx.Status)
	return billing.TransactionStatus{
		ID:        tx.ID,
		Status:    st,
		Completed: st == "completed" || st == "paid" || st == "billed",
	}, nil
}

func isLocalhost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "0.0.0.0":
		return true
	}
	return false
}

func mask(s string) string {
	if len(s) <= 10 {
		return strings.Repeat("*", len(s))
	}
	return s[:10] + "..."
}
