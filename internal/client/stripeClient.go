package client

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	stripeclient "github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/Ghepes/checkout-ui-app/internal/config"
)

// Gateway is the processor boundary: session creation, charge and transfer
// operations, customer lookup, and webhook verification. Everything behind it
// is a remote service that may fail; callers own the failure handling.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResult, error)

	GetPaymentIntent(ctx context.Context, id string) (*PaymentDetails, error)
	GetCharge(ctx context.Context, id string) (*PaymentDetails, error)

	ListTransfers(ctx context.Context, destination, transferGroup string) ([]*TransferInfo, error)
	CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferInfo, error)

	ListCustomersByEmail(ctx context.Context, email string) ([]*CustomerInfo, error)
	CreateCustomer(ctx context.Context, email string) (*CustomerInfo, error)
	GetCustomer(ctx context.Context, id string) (*CustomerInfo, error)

	// VerifyEvent checks the signature header against the raw payload and
	// returns the normalized event. Verification happens before any other
	// processing; a SignatureError means nothing else may run.
	VerifyEvent(payload []byte, sigHeader string) (*PaymentEvent, error)
}

// SignatureError marks a notification that failed authenticity verification.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// LineItem is one displayable line of the checkout session.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Currency   string
}

// CheckoutSessionRequest carries everything the processor needs to build a
// hosted checkout session. Metadata is attached at the session level and
// PaymentMetadata at the payment level, so either side of a later
// notification can recover the settlement plan.
type CheckoutSessionRequest struct {
	LineItems       []LineItem
	Metadata        map[string]string
	PaymentMetadata map[string]string
	TransferGroup   string
	CustomerID      string
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
}

type CheckoutSessionResult struct {
	SessionID string
	URL       string
}

// PaymentDetails is the normalized view of a payment intent or charge.
type PaymentDetails struct {
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Currency        string
	Metadata        map[string]string
	TransferGroup   string
	// TransferID is set when the charge already carries a transfer
	// reference, which proves settlement has completed.
	TransferID string
}

type TransferInfo struct {
	ID                string
	Destination       string
	Amount            int64
	Currency          string
	TransferGroup     string
	SourceTransaction string
}

type TransferRequest struct {
	Amount            int64
	Currency          string
	Destination       string
	TransferGroup     string
	SourceTransaction string
	// IdempotencyKey closes the race between overlapping settlement runs
	// for the same charge.
	IdempotencyKey string
}

type CustomerInfo struct {
	ID               string
	Email            string
	Created          time.Time
	HasPaymentMethod bool
	// DuplicateOf points at the primary identity when this record was
	// marked as an alias.
	DuplicateOf string
}

// Event types the settlement pipeline reacts to. The processor delivers
// overlapping notifications for the same logical payment.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventChargeSucceeded   = "charge.succeeded"
)

// PaymentEvent is a verified, normalized payment lifecycle notification.
type PaymentEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	ChargeID        string
	// ObjectMetadata is the metadata of the event's own payload object
	// (session, payment intent or charge depending on Type).
	ObjectMetadata map[string]string
	Created        time.Time
}

type stripeGatewayImpl struct {
	api           *stripeclient.API
	webhookSecret string
}

// NewStripeGateway builds the processor client once at process start; every
// component receives it explicitly instead of reaching for package state.
func NewStripeGateway(cfg *config.Stripe) Gateway {
	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)

	return &stripeGatewayImpl{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *stripeGatewayImpl) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.PaymentMetadata,
		},
	}
	params.Context = ctx

	if req.TransferGroup != "" {
		params.PaymentIntentData.TransferGroup = stripe.String(req.TransferGroup)
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	// Prefer a resolved payment identity so the processor reuses the
	// buyer's existing profile; fall back to a bare email reference.
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	return &CheckoutSessionResult{
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}

func (g *stripeGatewayImpl) GetPaymentIntent(ctx context.Context, id string) (*PaymentDetails, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get payment intent %s: %w", id, err)
	}

	details := &PaymentDetails{
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Metadata:        pi.Metadata,
		TransferGroup:   pi.TransferGroup,
	}
	if pi.LatestCharge != nil {
		details.ChargeID = pi.LatestCharge.ID
		if pi.LatestCharge.Transfer != nil {
			details.TransferID = pi.LatestCharge.Transfer.ID
		}
	}

	return details, nil
}

func (g *stripeGatewayImpl) GetCharge(ctx context.Context, id string) (*PaymentDetails, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx

	ch, err := g.api.Charges.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get charge %s: %w", id, err)
	}

	details := &PaymentDetails{
		ChargeID:      ch.ID,
		Amount:        ch.Amount,
		Currency:      string(ch.Currency),
		Metadata:      ch.Metadata,
		TransferGroup: ch.TransferGroup,
	}
	if ch.PaymentIntent != nil {
		details.PaymentIntentID = ch.PaymentIntent.ID
	}
	if ch.Transfer != nil {
		details.TransferID = ch.Transfer.ID
	}

	return details, nil
}

func (g *stripeGatewayImpl) ListTransfers(ctx context.Context, destination, transferGroup string) ([]*TransferInfo, error) {
	params := &stripe.TransferListParams{
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	if transferGroup != "" {
		params.TransferGroup = stripe.String(transferGroup)
	}

	var transfers []*TransferInfo
	iter := g.api.Transfers.List(params)
	for iter.Next() {
		t := iter.Transfer()
		info := &TransferInfo{
			ID:            t.ID,
			Amount:        t.Amount,
			Currency:      string(t.Currency),
			TransferGroup: t.TransferGroup,
		}
		if t.Destination != nil {
			info.Destination = t.Destination.ID
		}
		if t.SourceTransaction != nil {
			info.SourceTransaction = t.SourceTransaction.ID
		}
		transfers = append(transfers, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list transfers for %s: %w", destination, err)
	}

	return transfers, nil
}

func (g *stripeGatewayImpl) CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferInfo, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	params.Context = ctx
	if req.SourceTransaction != "" {
		params.SourceTransaction = stripe.String(req.SourceTransaction)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	t, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create transfer to %s: %w", req.Destination, err)
	}

	info := &TransferInfo{
		ID:            t.ID,
		Amount:        t.Amount,
		Currency:      string(t.Currency),
		TransferGroup: t.TransferGroup,
	}
	if t.Destination != nil {
		info.Destination = t.Destination.ID
	}
	if t.SourceTransaction != nil {
		info.SourceTransaction = t.SourceTransaction.ID
	}

	return info, nil
}

func (g *stripeGatewayImpl) ListCustomersByEmail(ctx context.Context, email string) ([]*CustomerInfo, error) {
	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Context = ctx

	var customers []*CustomerInfo
	iter := g.api.Customers.List(params)
	for iter.Next() {
		customers = append(customers, newCustomerInfo(iter.Customer()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list customers by email: %w", err)
	}

	return customers, nil
}

func (g *stripeGatewayImpl) CreateCustomer(ctx context.Context, email string) (*CustomerInfo, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx

	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create customer: %w", err)
	}

	return newCustomerInfo(c), nil
}

func (g *stripeGatewayImpl) GetCustomer(ctx context.Context, id string) (*CustomerInfo, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := g.api.Customers.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get customer %s: %w", id, err)
	}

	return newCustomerInfo(c), nil
}

func (g *stripeGatewayImpl) VerifyEvent(payload []byte, sigHeader string) (*PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		return nil, &SignatureError{Err: err}
	}

	return normalizeEvent(&event)
}

func newCustomerInfo(c *stripe.Customer) *CustomerInfo {
	info := &CustomerInfo{
		ID:      c.ID,
		Email:   c.Email,
		Created: time.Unix(c.Created, 0),
	}
	if c.DefaultSource != nil {
		info.HasPaymentMethod = true
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		info.HasPaymentMethod = true
	}
	if c.Metadata != nil {
		info.DuplicateOf = c.Metadata["duplicate_of"]
	}
	return info
}
