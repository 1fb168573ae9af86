package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
)

// FakePreferenceClient records calls and returns Err when set.
type FakePreferenceClient struct {
	mu sync.Mutex

	Err      error
	Requests []payments.PreferenceRequest
}

var _ payments.PreferenceClient = (*FakePreferenceClient)(nil)

func (f *FakePreferenceClient) CreatePreference(_ context.Context, req payments.PreferenceRequest) (*payments.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return nil, &payments.ProviderError{Provider: "fake", Err: f.Err}
	}
	n := len(f.Requests)
	return &payments.Preference{
		ID:          fmt.Sprintf("pref-%d", n),
		CheckoutURL: fmt.Sprintf("https://checkout.example.test/%s", req.ExternalReference),
	}, nil
}

func (f *FakePreferenceClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}
