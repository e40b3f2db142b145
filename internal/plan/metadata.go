package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Metadata wire keys. The processor's metadata channel is flat string
// key-value pairs, so everything is stringified on the way out and decoded
// back into the typed Plan before any logic touches it.
const (
	keyAccountIDs      = "connected_account_ids"
	keyProductAccounts = "product_connected_accounts"
	keyTransferGroups  = "transfer_groups"
	keyTransferGroup   = "transfer_group"
	keyCurrency        = "currency"
)

// ErrPlanMissing marks metadata that carries no settlement plan at all.
// Settlement treats such charges as having nothing to reconcile.
var ErrPlanMissing = errors.New("no settlement plan in metadata")

type wireEntry struct {
	Amount         int64 `json:"amount"`
	ApplicationFee int64 `json:"application_fee"`
}

// Encode serializes the plan into processor metadata. The same map is
// attached at both the session level and the payment level, since the
// processor may expose only one of them to a given notification kind.
func Encode(p *Plan) (map[string]string, error) {
	groups := make(map[string]wireEntry, len(p.Entries))
	accountIDs := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		accountIDs = append(accountIDs, e.AccountID)
		groups[e.AccountID] = wireEntry{Amount: e.Amount, ApplicationFee: e.ApplicationFee}
	}

	raw, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("marshal transfer groups: %w", err)
	}

	pairs := make([]string, 0, len(p.ProductAccounts))
	for _, pa := range p.ProductAccounts {
		pairs = append(pairs, pa.ProductID+":"+pa.AccountID)
	}

	return map[string]string{
		keyAccountIDs:      strings.Join(accountIDs, ","),
		keyProductAccounts: strings.Join(pairs, ","),
		keyTransferGroups:  string(raw),
		keyTransferGroup:   p.TransferGroup,
		keyCurrency:        p.Currency,
	}, nil
}

// Decode rebuilds a typed Plan from processor metadata. Returns
// ErrPlanMissing when the metadata carries no transfer_groups entry.
func Decode(md map[string]string) (*Plan, error) {
	raw, ok := md[keyTransferGroups]
	if !ok || raw == "" {
		return nil, ErrPlanMissing
	}

	var groups map[string]wireEntry
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, fmt.Errorf("decode transfer groups: %w", err)
	}

	// connected_account_ids preserves the original entry order; the JSON
	// map alone cannot.
	var order []string
	if ids := md[keyAccountIDs]; ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if _, ok := groups[id]; ok {
				order = append(order, id)
			}
		}
	}
	if len(order) != len(groups) {
		order = order[:0]
		for id := range groups {
			order = append(order, id)
		}
		sort.Strings(order)
	}

	entries := make([]Entry, 0, len(groups))
	for _, id := range order {
		g := groups[id]
		entries = append(entries, Entry{AccountID: id, Amount: g.Amount, ApplicationFee: g.ApplicationFee})
	}

	var productAccounts []ProductAccount
	if pairs := md[keyProductAccounts]; pairs != "" {
		for _, pair := range strings.Split(pairs, ",") {
			productID, accountID, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			productAccounts = append(productAccounts, ProductAccount{ProductID: productID, AccountID: accountID})
		}
	}

	return &Plan{
		Entries:         entries,
		ProductAccounts: productAccounts,
		Currency:        md[keyCurrency],
		TransferGroup:   md[keyTransferGroup],
	}, nil
}

// DecodeWithFallback reads the plan from payment-level metadata first and
// falls back to session-level metadata, accommodating older plans that
// omitted the payment-level copy.
func DecodeWithFallback(paymentMD, sessionMD map[string]string) (*Plan, error) {
	p, err := Decode(paymentMD)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlanMissing) {
		return nil, err
	}
	return Decode(sessionMD)
}
