package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrPaymentProvider is matched by every error a PreferenceClient returns.
var ErrPaymentProvider = errors.New("payment provider error")

// PreferenceClient creates a checkout intent at the payment provider. The
// provider later reports the outcome through a webhook that carries
// ExternalReference back.
type PreferenceClient interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

type Item struct {
	ID        string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Payer struct {
	Email string
	Name  string
	Phone string
}

type BackURLs struct {
	Success string
	Failure string
	Pending string
}

type PreferenceRequest struct {
	Items             []Item
	Payer             Payer
	ExternalReference string
	BackURLs          BackURLs
}

// Total is the sum of quantity x unit price over all items.
func (r PreferenceRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type Preference struct {
	ID          string
	CheckoutURL string
}

type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: create preference failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: create preference failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrPaymentProvider }
