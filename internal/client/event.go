package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
)

// normalizeEvent maps a verified processor event onto the PaymentEvent shape
// the settlement pipeline consumes. Event kinds outside the payment
// lifecycle come back with empty payment references and are ignored upstream.
func normalizeEvent(event *stripe.Event) (*PaymentEvent, error) {
	normalized := &PaymentEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0),
	}

	switch normalized.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session payload: %w", err)
		}
		normalized.ObjectMetadata = sess.Metadata
		if sess.PaymentIntent != nil {
			normalized.PaymentIntentID = sess.PaymentIntent.ID
		}

	case EventPaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent payload: %w", err)
		}
		normalized.ObjectMetadata = pi.Metadata
		normalized.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			normalized.ChargeID = pi.LatestCharge.ID
		}

	case EventChargeSucceeded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge payload: %w", err)
		}
		normalized.ObjectMetadata = ch.Metadata
		normalized.ChargeID = ch.ID
		if ch.PaymentIntent != nil {
			normalized.PaymentIntentID = ch.PaymentIntent.ID
		}
	}

	return normalized, nil
}
