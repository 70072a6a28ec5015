package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/bryanwahyu/leasecheck/internal/domain/billing"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

type MidtransConfig struct {
	ServerKey  string
	Production bool
	FinishURL  string
	ItemName   string
	// gross amount per plan in the smallest currency unit
	Prices map[billing.Plan]int64
}

// MidtransProvider opens Snap checkouts. Its price ids are plan names with a
// midtrans_ prefix since Snap has no catalogue.
type MidtransProvider struct {
	cfg    MidtransConfig
	snap   snap.Client
	core   coreapi.Client
	logger logger.ILogger
}

func NewMidtransProvider(cfg MidtransConfig, log logger.ILogger) *MidtransProvider {
	return &MidtransProvider{cfg: cfg, logger: log}
}

func (p *MidtransProvider) Name() string { return "midtrans" }

func (p *MidtransProvider) env() midtrans.EnvironmentType {
	if p.cfg.Production {
		return midtrans.Production
	}
	return midtrans.Sandbox
}

func (p *MidtransProvider) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.cfg.ServerKey == "" {
		return fmt.Errorf("midtrans server key is not configured")
	}
	p.snap.New(p.cfg.ServerKey, p.env())
	p.core.New(p.cfg.ServerKey, p.env())
	p.logger.Info(module, "Midtrans initialized", map[string]interface{}{"production": p.cfg.Production})
	return nil
}

func (p *MidtransProvider) PriceID(plan billing.Plan) string {
	return "midtrans_" + string(plan)
}

func (p *MidtransProvider) ValidatePriceID(id string) error {
	plan, ok := strings.CutPrefix(id, "midtrans_")
	if !ok {
		return fmt.Errorf("%w: %q is not a midtrans price", billing.ErrInvalidPriceID, id)
	}
	if p.cfg.Prices[billing.Plan(plan)] <= 0 {
		return fmt.Errorf("%w: no price configured for plan %q", billing.ErrInvalidPriceID, plan)
	}
	return nil
}

func (p *MidtransProvider) Open(ctx context.Context, req billing.Request) (*billing.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan := strings.TrimPrefix(req.PriceID, "midtrans_")
	price := p.cfg.Prices[billing.Plan(plan)]
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	name := p.cfg.ItemName
	if name == "" {
		name = "Lease analysis access (" + plan + ")"
	}
	userID, _ := req.CustomData["user_id"].(string)
	orderID := "lease-" + uuid.NewString()

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: price * int64(qty),
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.PriceID,
				Price: price,
				Qty:   int32(qty),
				Name:  name,
			},
		},
		CustomField1:    userID,
		EnabledPayments: snap.AllSnapPaymentType,
	}
	if p.cfg.FinishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: p.cfg.FinishURL}
	}

	resp, midErr := p.snap.CreateTransaction(snapReq)
	if midErr != nil {
		return nil, &billing.CheckoutError{
			Type:    billing.ErrorProvider,
			Message: midErr.GetMessage(),
			Details: map[string]any{"status": midErr.StatusCode, "order_id": orderID},
			Err:     midErr,
		}
	}
	return &billing.Session{
		Provider:      p.Name(),
		TransactionID: orderID,
		URL:           resp.RedirectURL,
		Token:         resp.Token,
	}, nil
}

func (p *MidtransProvider) Status(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return billing.TransactionStatus{}, err
	}
	res, midErr := p.core.CheckTransaction(transactionID)
	if midErr != nil {
		return billing.TransactionStatus{}, fmt.Errorf("midtrans status %s: %s", transactionID, midErr.GetMessage())
	}
	st := strings.ToLower(res.TransactionStatus)
	return billing.TransactionStatus{
		ID:        transactionID,
		Status:    st,
		Completed: st == "capture" || st == "settlement",
	}, nil
}
