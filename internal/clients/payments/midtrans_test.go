package payments

import (
	"context"
	"errors"
	"testing"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type fakeSnap struct {
	got  *snap.Request
	resp *snap.Response
	err  *midtrans.Error
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.got = req
	return f.resp, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func sampleRequest() PreferenceRequest {
	return PreferenceRequest{
		Items:             []Item{{ID: "enrollment-fee-colonia", Title: "Inscripcion colonia", Quantity: 1, UnitPrice: decimal.NewFromInt(15000)}},
		Payer:             Payer{Email: "ana@example.com", Name: "Ana Perez"},
		ExternalReference: "enr-1",
		BackURLs:          BackURLs{Success: "https://example.test/ok"},
	}
}

func TestMidtransClientCreatePreference(t *testing.T) {
	fs := &fakeSnap{resp: &snap.Response{Token: "tok-1", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/tok-1"}}
	c := &MidtransClient{log: testLogger(t), snap: fs}

	pref, err := c.CreatePreference(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("CreatePreference: %v", err)
	}
	if pref.ID != "tok-1" || pref.CheckoutURL == "" {
		t.Fatalf("preference: got=%+v", pref)
	}
	if fs.got.TransactionDetails.OrderID != "enr-1" || fs.got.TransactionDetails.GrossAmt != 15000 {
		t.Fatalf("transaction details: got=%+v", fs.got.TransactionDetails)
	}
	if fs.got.Callbacks == nil || fs.got.Callbacks.Finish != "https://example.test/ok" {
		t.Fatalf("callbacks: got=%+v", fs.got.Callbacks)
	}
}

func TestMidtransClientWrapsProviderError(t *testing.T) {
	fs := &fakeSnap{err: &midtrans.Error{Message: "unauthorized", StatusCode: 401}}
	c := &MidtransClient{log: testLogger(t), snap: fs}

	_, err := c.CreatePreference(context.Background(), sampleRequest())
	if !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("want ErrPaymentProvider got=%v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 401 {
		t.Fatalf("provider error: got=%v", err)
	}
}

func TestMidtransClientRejectsZeroAmountWithoutCalling(t *testing.T) {
	fs := &fakeSnap{}
	c := &MidtransClient{log: testLogger(t), snap: fs}
	req := sampleRequest()
	req.Items[0].UnitPrice = decimal.Zero

	if _, err := c.CreatePreference(context.Background(), req); !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("want ErrPaymentProvider got=%v", err)
	}
	if fs.got != nil {
		t.Fatalf("snap must not be called")
	}
}
