// Package plan holds the settlement plan: the computed mapping of how a
// captured payment's funds split between the platform fee and per-vendor
// transfers. The plan is produced once at checkout time, travels as charge
// metadata, and is replayed read-only at settlement time.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when a plan is requested for zero items.
var ErrEmptyCart = errors.New("cart is empty")

// Item is one cart line item as the planner sees it. Items without a
// connected account are platform items: they contribute to the charge total
// but never to any vendor transfer or fee.
type Item struct {
	ProductID   string
	AccountID   string // destination connected account, empty for platform items
	UnitPrice   int64  // minor units
	Quantity    int64
	Name        string
	SellerName  string
	SellerEmail string
}

// Entry is the settlement for one destination account. Amount is what the
// vendor receives, ApplicationFee is the platform's cut of that vendor's
// subtotal. Amount + ApplicationFee equals the vendor subtotal exactly.
type Entry struct {
	AccountID      string
	Amount         int64
	ApplicationFee int64
}

// ProductAccount records which product routed to which destination, kept so
// the wire metadata can be rebuilt and audited.
type ProductAccount struct {
	ProductID string
	AccountID string
}

// Plan is the full settlement plan for one charge.
type Plan struct {
	Entries         []Entry // ordered by first appearance of the destination in the cart
	ProductAccounts []ProductAccount
	Currency        string
	TransferGroup   string // correlation key linking the charge to its transfers
}

// PlatformFee is the total fee across all vendor entries, in minor units.
func (p *Plan) PlatformFee() int64 {
	var fee int64
	for _, e := range p.Entries {
		fee += e.ApplicationFee
	}
	return fee
}

// TransferTotal is the sum of all vendor transfer amounts, in minor units.
func (p *Plan) TransferTotal() int64 {
	var total int64
	for _, e := range p.Entries {
		total += e.Amount
	}
	return total
}

// Entry returns the plan entry for the given destination, if any.
func (p *Plan) Entry(accountID string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.AccountID == accountID {
			return e, true
		}
	}
	return Entry{}, false
}

// NewTransferGroup builds a correlation key for one checkout. The key is
// derived from the buyer, not from any vendor, so transfers for all
// destinations of one charge share it.
func NewTransferGroup(prefix, buyerKey string, now time.Time) string {
	if buyerKey == "" {
		buyerKey = "guest"
	}
	return fmt.Sprintf("%s_%s_%d_%s", prefix, buyerKey, now.UnixMilli(), uuid.NewString()[:8])
}

// Build partitions items by destination account and computes the settlement
// plan. The fee is computed per destination on that vendor's subtotal
// (round half up), never as one global fee split across vendors. Platform
// items pay no fee and produce no entry.
//
// Invariant: for every entry, Amount+ApplicationFee equals the vendor
// subtotal, so the sum of transfers and fees can never exceed the charge.
func Build(items []Item, feePercent int64, currency, transferGroup string) (*Plan, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if feePercent < 0 || feePercent > 100 {
		return nil, fmt.Errorf("fee percent out of range: %d", feePercent)
	}

	subtotals := make(map[string]int64)
	var order []string
	var productAccounts []ProductAccount

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s: quantity must be positive", item.ProductID)
		}
		if item.UnitPrice < 0 {
			return nil, fmt.Errorf("item %s: unit price must not be negative", item.ProductID)
		}
		if item.AccountID == "" {
			continue
		}

		if _, seen := subtotals[item.AccountID]; !seen {
			order = append(order, item.AccountID)
		}
		subtotals[item.AccountID] += item.UnitPrice * item.Quantity
		productAccounts = append(productAccounts, ProductAccount{
			ProductID: item.ProductID,
			AccountID: item.AccountID,
		})
	}

	pct := decimal.NewFromInt(feePercent).Div(decimal.NewFromInt(100))

	entries := make([]Entry, 0, len(order))
	for _, accountID := range order {
		subtotal := subtotals[accountID]

		// Round half up to the minor unit; the fee never exceeds the
		// subtotal so the transfer amount stays non-negative.
		fee := decimal.NewFromInt(subtotal).Mul(pct).Round(0).IntPart()

		entries = append(entries, Entry{
			AccountID:      accountID,
			Amount:         subtotal - fee,
			ApplicationFee: fee,
		})
	}

	return &Plan{
		Entries:         entries,
		ProductAccounts: productAccounts,
		Currency:        currency,
		TransferGroup:   transferGroup,
	}, nil
}
