package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/model"
	"github.com/Ghepes/checkout-ui-app/internal/plan"
	"github.com/Ghepes/checkout-ui-app/internal/repository"
)

func newSettlementFixture(t *testing.T) (*fakeGateway, SettlementService, repository.TransferAttemptRepository) {
	t.Helper()
	fake := newFakeGateway()
	db := newTestDB(t)
	attemptRepo := repository.NewTransferAttemptRepository(db)
	svc := NewSettlementService(fake, repository.NewWebhookEventRepository(db), attemptRepo)
	return fake, svc, attemptRepo
}

func settledPlanMetadata(t *testing.T) map[string]string {
	t.Helper()
	md, err := plan.Encode(&plan.Plan{
		Entries: []plan.Entry{
			{AccountID: "acct_V1", Amount: 1800, ApplicationFee: 200},
			{AccountID: "acct_V2", Amount: 450, ApplicationFee: 50},
		},
		Currency:      "usd",
		TransferGroup: "grp_cus_1_1700000000000_abcd1234",
	})
	if err != nil {
		t.Fatalf("encode plan: %v", err)
	}
	return md
}

func addPayment(fake *fakeGateway, md map[string]string) *client.PaymentDetails {
	pd := &client.PaymentDetails{
		PaymentIntentID: "pi_1",
		ChargeID:        "ch_1",
		Amount:          2750,
		Currency:        "usd",
		Metadata:        md,
	}
	fake.payments["pi_1"] = pd
	fake.charges["ch_1"] = pd
	return pd
}

func TestHandleEventCreatesTransfers(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	addPayment(fake, settledPlanMetadata(t))

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID:              "evt_1",
		Type:            client.EventCheckoutCompleted,
		PaymentIntentID: "pi_1",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(fake.transfers) != 2 {
		t.Fatalf("transfers = %d, want 2", len(fake.transfers))
	}
	byDest := map[string]*client.TransferInfo{}
	for _, tr := range fake.transfers {
		byDest[tr.Destination] = tr
		if tr.SourceTransaction != "ch_1" {
			t.Errorf("transfer %s source = %s, want ch_1", tr.ID, tr.SourceTransaction)
		}
	}
	if byDest["acct_V1"].Amount != 1800 || byDest["acct_V2"].Amount != 450 {
		t.Errorf("transfer amounts wrong: %+v", byDest)
	}
}

func TestOverlappingEventsSettleOnce(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	addPayment(fake, settledPlanMetadata(t))

	events := []*client.PaymentEvent{
		{ID: "evt_1", Type: client.EventCheckoutCompleted, PaymentIntentID: "pi_1"},
		{ID: "evt_2", Type: client.EventPaymentSucceeded, PaymentIntentID: "pi_1", ChargeID: "ch_1"},
		{ID: "evt_3", Type: client.EventChargeSucceeded, ChargeID: "ch_1"},
	}
	for _, ev := range events {
		if err := svc.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleEvent(%s): %v", ev.ID, err)
		}
	}

	// Overlapping notifications for the same charge: exactly one transfer
	// per destination.
	if len(fake.transfers) != 2 {
		t.Fatalf("transfers = %d, want 2 after redelivery", len(fake.transfers))
	}
}

func TestExactRedeliverySkipsGatewayReads(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	addPayment(fake, settledPlanMetadata(t))

	ev := &client.PaymentEvent{ID: "evt_1", Type: client.EventCheckoutCompleted, PaymentIntentID: "pi_1"}
	if err := svc.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	before := fake.totalCalls()
	if err := svc.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent redelivery: %v", err)
	}
	if fake.totalCalls() != before {
		t.Errorf("exact redelivery made %d gateway calls", fake.totalCalls()-before)
	}
}

func TestAlreadySettledShortCircuits(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	pd := addPayment(fake, settledPlanMetadata(t))
	pd.TransferID = "tr_prior"

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID: "evt_1", Type: client.EventPaymentSucceeded, PaymentIntentID: "pi_1",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if fake.callCount("CreateTransfer") != 0 || fake.callCount("ListTransfers") != 0 {
		t.Error("recorded transfer reference must short-circuit settlement")
	}
}

func TestPartialFailureIsolated(t *testing.T) {
	fake, svc, attemptRepo := newSettlementFixture(t)
	addPayment(fake, settledPlanMetadata(t))
	fake.transferErrs["acct_V2"] = errors.New("destination account restricted")

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID: "evt_1", Type: client.EventCheckoutCompleted, PaymentIntentID: "pi_1",
	})
	if err != nil {
		t.Fatalf("HandleEvent must acknowledge despite transfer failure, got %v", err)
	}

	// acct_V1 settles even though acct_V2 failed.
	if len(fake.transfers) != 1 || fake.transfers[0].Destination != "acct_V1" {
		t.Fatalf("transfers = %+v, want only acct_V1", fake.transfers)
	}

	failed, err := attemptRepo.ListFailed(context.Background())
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].Destination != "acct_V2" {
		t.Fatalf("failed attempts = %+v, want one for acct_V2", failed)
	}
	if failed[0].Status != model.TransferStatusFailed || failed[0].LastError == "" {
		t.Errorf("attempt not marked failed: %+v", failed[0])
	}
}

func TestExistingTransferSkipped(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	md := settledPlanMetadata(t)
	addPayment(fake, md)

	// A prior invocation already paid acct_V1 for this charge.
	fake.transfers = append(fake.transfers, &client.TransferInfo{
		ID:                "tr_existing",
		Destination:       "acct_V1",
		Amount:            1800,
		TransferGroup:     "grp_cus_1_1700000000000_abcd1234",
		SourceTransaction: "ch_1",
	})

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID: "evt_1", Type: client.EventCheckoutCompleted, PaymentIntentID: "pi_1",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if fake.callCount("CreateTransfer") != 1 {
		t.Errorf("CreateTransfer calls = %d, want 1 (acct_V2 only)", fake.callCount("CreateTransfer"))
	}
	if len(fake.transfers) != 2 {
		t.Errorf("transfers = %d, want existing + acct_V2", len(fake.transfers))
	}
}

func TestMissingPlanIsNoop(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	addPayment(fake, map[string]string{"unrelated": "x"})

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID: "evt_1", Type: client.EventPaymentSucceeded, PaymentIntentID: "pi_1",
	})
	if err != nil {
		t.Fatalf("missing plan must not error, got %v", err)
	}
	if fake.callCount("CreateTransfer") != 0 {
		t.Error("no transfers may be issued without a plan")
	}
}

func TestSessionMetadataFallback(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)
	// Older plan: only the session-level metadata copy exists.
	addPayment(fake, map[string]string{})

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID:              "evt_1",
		Type:            client.EventCheckoutCompleted,
		PaymentIntentID: "pi_1",
		ObjectMetadata:  settledPlanMetadata(t),
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(fake.transfers) != 2 {
		t.Errorf("transfers = %d, want 2 from session-level plan", len(fake.transfers))
	}
}

func TestIrrelevantEventIgnored(t *testing.T) {
	fake, svc, _ := newSettlementFixture(t)

	err := svc.HandleEvent(context.Background(), &client.PaymentEvent{
		ID: "evt_1", Type: "invoice.paid",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fake.totalCalls() != 0 {
		t.Error("irrelevant events must not touch the gateway")
	}
}
