package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ghepes/checkout-ui-app/internal/client"
	"github.com/Ghepes/checkout-ui-app/internal/model"
)

// fakeGateway is an in-memory processor double. Every method counts its
// calls so tests can assert which remote operations ran.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	customersByEmail map[string][]*client.CustomerInfo
	customersByID    map[string]*client.CustomerInfo
	listCustomersErr error
	createCustErr    error
	nextCustomerID   int

	sessionReq *client.CheckoutSessionRequest
	sessionErr error

	payments map[string]*client.PaymentDetails // by payment intent id
	charges  map[string]*client.PaymentDetails // by charge id

	transfers        []*client.TransferInfo
	transferErrs     map[string]error // destination -> error
	listTransfersErr error

	verifyErr   error
	verifyEvent *client.PaymentEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:            map[string]int{},
		customersByEmail: map[string][]*client.CustomerInfo{},
		customersByID:    map[string]*client.CustomerInfo{},
		payments:         map[string]*client.PaymentDetails{},
		charges:          map[string]*client.PaymentDetails{},
		transferErrs:     map[string]error{},
	}
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeGateway) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeGateway) addCustomer(c *client.CustomerInfo) {
	f.customersByEmail[c.Email] = append(f.customersByEmail[c.Email], c)
	f.customersByID[c.ID] = c
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSessionResult, error) {
	f.record("CreateCheckoutSession")
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	f.mu.Lock()
	f.sessionReq = req
	f.mu.Unlock()
	return &client.CheckoutSessionResult{SessionID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

func (f *fakeGateway) GetPaymentIntent(ctx context.Context, id string) (*client.PaymentDetails, error) {
	f.record("GetPaymentIntent")
	pd, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s not found", id)
	}
	return pd, nil
}

func (f *fakeGateway) GetCharge(ctx context.Context, id string) (*client.PaymentDetails, error) {
	f.record("GetCharge")
	pd, ok := f.charges[id]
	if !ok {
		return nil, fmt.Errorf("charge %s not found", id)
	}
	return pd, nil
}

func (f *fakeGateway) ListTransfers(ctx context.Context, destination, transferGroup string) ([]*client.TransferInfo, error) {
	f.record("ListTransfers")
	if f.listTransfersErr != nil {
		return nil, f.listTransfersErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*client.TransferInfo
	for _, t := range f.transfers {
		if t.Destination == destination && (transferGroup == "" || t.TransferGroup == transferGroup) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func (f *fakeGateway) CreateTransfer(ctx context.Context, req *client.TransferRequest) (*client.TransferInfo, error) {
	f.record("CreateTransfer")
	if err := f.transferErrs[req.Destination]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &client.TransferInfo{
		ID:                fmt.Sprintf("tr_%d", len(f.transfers)+1),
		Destination:       req.Destination,
		Amount:            req.Amount,
		Currency:          req.Currency,
		TransferGroup:     req.TransferGroup,
		SourceTransaction: req.SourceTransaction,
	}
	f.transfers = append(f.transfers, t)
	return t, nil
}

func (f *fakeGateway) ListCustomersByEmail(ctx context.Context, email string) ([]*client.CustomerInfo, error) {
	f.record("ListCustomersByEmail")
	if f.listCustomersErr != nil {
		return nil, f.listCustomersErr
	}
	return f.customersByEmail[email], nil
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email string) (*client.CustomerInfo, error) {
	f.record("CreateCustomer")
	if f.createCustErr != nil {
		return nil, f.createCustErr
	}
	f.mu.Lock()
	f.nextCustomerID++
	c := &client.CustomerInfo{ID: fmt.Sprintf("cus_new_%d", f.nextCustomerID), Email: email}
	f.mu.Unlock()
	f.addCustomer(c)
	return c, nil
}

func (f *fakeGateway) GetCustomer(ctx context.Context, id string) (*client.CustomerInfo, error) {
	f.record("GetCustomer")
	c, ok := f.customersByID[id]
	if !ok {
		return nil, fmt.Errorf("customer %s not found", id)
	}
	return c, nil
}

func (f *fakeGateway) VerifyEvent(payload []byte, sigHeader string) (*client.PaymentEvent, error) {
	f.record("VerifyEvent")
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyEvent, nil
}

var _ client.Gateway = (*fakeGateway)(nil)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := db.AutoMigrate(&model.WebhookEventRecord{}, &model.TransferAttempt{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
