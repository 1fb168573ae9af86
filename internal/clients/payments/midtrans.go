package payments

import (
	"context"
	"errors"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/yungbote/enrollment-backend/internal/platform/logger"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// MidtransClient creates Snap transactions. The Snap token is the
// preference id and the redirect URL is the checkout URL.
type MidtransClient struct {
	log  *logger.Logger
	snap snapAPI
}

func NewMidtransClient(log *logger.Logger, serverKey string, production bool) *MidtransClient {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var c snap.Client
	c.New(serverKey, env)
	return &MidtransClient{log: log.With("client", "MidtransClient"), snap: &c}
}

func (c *MidtransClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProviderError{Provider: "midtrans", Err: err}
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, &ProviderError{Provider: "midtrans", Err: errors.New("external reference is required")}
	}
	gross := req.Total()
	if !gross.IsPositive() {
		return nil, &ProviderError{Provider: "midtrans", Err: errors.New("gross amount must be positive")}
	}

	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  truncate(it.Title, 50),
			Price: it.UnitPrice.Round(0).IntPart(),
			Qty:   int32(it.Quantity),
		})
	}
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.ExternalReference,
			GrossAmt: gross.Round(0).IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Payer.Name,
			Email: req.Payer.Email,
			Phone: req.Payer.Phone,
		},
		Items: &items,
	}
	if req.BackURLs.Success != "" {
		sr.Callbacks = &snap.Callbacks{Finish: req.BackURLs.Success}
	}

	resp, merr := c.snap.CreateTransaction(sr)
	if merr != nil {
		c.log.Warn("snap create transaction failed",
			"external_reference", req.ExternalReference,
			"status_code", merr.StatusCode,
			"error", merr.Message,
		)
		return nil, &ProviderError{Provider: "midtrans", StatusCode: merr.StatusCode, Err: merr}
	}
	if resp == nil || resp.Token == "" {
		return nil, &ProviderError{Provider: "midtrans", Err: errors.New("empty snap token")}
	}
	return &Preference{ID: resp.Token, CheckoutURL: resp.RedirectURL}, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
