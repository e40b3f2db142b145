package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/config"
	"github.com/Ghepes/checkout-ui-app/internal/dto"
	"github.com/Ghepes/checkout-ui-app/internal/plan"
)

// ErrEmptyCart rejects a checkout with no items before any gateway call.
var ErrEmptyCart = plan.ErrEmptyCart

// SessionCreationError wraps a gateway failure during session creation.
// It is surfaced to the caller and not retried; the user retries by
// resubmitting the cart.
type SessionCreationError struct {
	Err error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("checkout session creation failed: %v", e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// CheckoutService builds the settlement plan for a cart and creates the
// hosted checkout session carrying it.
type CheckoutService interface {
	CreateSession(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
}

type checkoutServiceImpl struct {
	gateway  client.Gateway
	identity IdentityService
	cfg      config.Checkout
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewCheckoutService(
	gateway client.Gateway,
	identity IdentityService,
	cfg config.Checkout,
	baseURL string,
) CheckoutService {
	return &checkoutServiceImpl{
		gateway:  gateway,
		identity: identity,
		cfg:      cfg,
		baseURL:  baseURL,
		logger:   slog.With("component", "checkout"),
		now:      time.Now,
	}
}

func (s *checkoutServiceImpl) CreateSession(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	buyer := s.resolveBuyer(ctx, req)

	buyerKey := buyer.CustomerID
	if buyerKey == "" {
		buyerKey = req.BuyerID
	}
	transferGroup := plan.NewTransferGroup(s.cfg.TransferGroupPrefix, buyerKey, s.now())

	items := make([]plan.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = plan.Item{
			ProductID:   it.ID,
			AccountID:   it.ConnectedAccountID,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Name:        it.Name,
			SellerName:  it.SellerName,
			SellerEmail: it.SellerEmail,
		}
	}

	p, err := plan.Build(items, s.cfg.FeePercent, s.cfg.Currency, transferGroup)
	if err != nil {
		return nil, err
	}

	metadata, err := plan.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encode settlement plan: %w", err)
	}

	lineItems := make([]client.LineItem, len(items))
	for i, it := range items {
		lineItems[i] = client.LineItem{
			Name:       it.Name,
			UnitAmount: it.UnitPrice,
			Quantity:   it.Quantity,
			Currency:   s.cfg.Currency,
		}
	}

	// The plan rides on both the session and the eventual payment, since a
	// notification may expose only one of the two metadata channels.
	result, err := s.gateway.CreateCheckoutSession(ctx, &client.CheckoutSessionRequest{
		LineItems:       lineItems,
		Metadata:        metadata,
		PaymentMetadata: metadata,
		TransferGroup:   transferGroup,
		CustomerID:      buyer.CustomerID,
		CustomerEmail:   buyer.Email,
		SuccessURL:      s.baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       s.baseURL,
	})
	if err != nil {
		return nil, &SessionCreationError{Err: err}
	}

	s.logger.Info("checkout session created",
		"session", result.SessionID,
		"transfer_group", transferGroup,
		"destinations", len(p.Entries),
		"platform_fee", p.PlatformFee(),
	)

	return &dto.CheckoutResponse{
		SessionID: result.SessionID,
		URL:       result.URL,
	}, nil
}

// resolveBuyer never blocks checkout: on any identity failure the session
// falls back to a direct email reference.
func (s *checkoutServiceImpl) resolveBuyer(ctx context.Context, req *dto.CheckoutRequest) *BuyerRef {
	buyer, err := s.identity.Resolve(ctx, req.BuyerEmail)
	if err != nil || buyer == nil {
		s.logger.Warn("identity resolution failed, proceeding with email reference", "err", err)
		return &BuyerRef{Email: strings.ToLower(strings.TrimSpace(req.BuyerEmail))}
	}
	return buyer
}
