package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Ghepes/checkout-ui-app/internal/client"
)

// BuyerRef is the buyer's payment identity as checkout uses it: a resolved
// processor customer when resolution worked, otherwise just the email.
type BuyerRef struct {
	CustomerID string
	Email      string
}

// IdentityService finds or creates the canonical payment identity for a
// buyer and resolves duplicate identities to one primary record.
type IdentityService interface {
	Resolve(ctx context.Context, email string) (*BuyerRef, error)
	// Canonicalize follows a "duplicate of" marker to the primary
	// identity. Pure lookup: no side effects, idempotent.
	Canonicalize(ctx context.Context, customerID string) (string, error)
}

type identityServiceImpl struct {
	gateway client.Gateway
	logger  *slog.Logger
}

func NewIdentityService(gateway client.Gateway) IdentityService {
	return &identityServiceImpl{
		gateway: gateway,
		logger:  slog.With("component", "identity"),
	}
}

func (s *identityServiceImpl) Resolve(ctx context.Context, email string) (*BuyerRef, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &BuyerRef{}, nil
	}

	customers, err := s.gateway.ListCustomersByEmail(ctx, email)
	if err != nil {
		return &BuyerRef{Email: email}, fmt.Errorf("list customers: %w", err)
	}

	if len(customers) == 0 {
		created, err := s.gateway.CreateCustomer(ctx, email)
		if err != nil {
			return &BuyerRef{Email: email}, fmt.Errorf("create customer: %w", err)
		}
		return &BuyerRef{CustomerID: created.ID, Email: email}, nil
	}

	primary := pickPrimary(customers)

	canonical, err := s.Canonicalize(ctx, primary.ID)
	if err != nil {
		// The selected identity is still usable without the marker chase.
		s.logger.Warn("canonicalize failed, using selected identity", "customer", primary.ID, "err", err)
		canonical = primary.ID
	}

	if len(customers) > 1 {
		s.logger.Debug("resolved duplicate identities", "email", email, "count", len(customers), "primary", canonical)
	}

	return &BuyerRef{CustomerID: canonical, Email: email}, nil
}

func (s *identityServiceImpl) Canonicalize(ctx context.Context, customerID string) (string, error) {
	customer, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		return customerID, fmt.Errorf("get customer: %w", err)
	}

	if customer.DuplicateOf != "" {
		return customer.DuplicateOf, nil
	}
	return customerID, nil
}

// pickPrimary orders duplicates by (hasPaymentMethod desc, createdAt desc)
// and returns the first. The order is total, so repeated resolution with no
// intervening creation always selects the same identity.
func pickPrimary(customers []*client.CustomerInfo) *client.CustomerInfo {
	sorted := make([]*client.CustomerInfo, len(customers))
	copy(sorted, customers)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].HasPaymentMethod != sorted[j].HasPaymentMethod {
			return sorted[i].HasPaymentMethod
		}
		return sorted[i].Created.After(sorted[j].Created)
	})

	return sorted[0]
}
