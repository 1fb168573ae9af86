package payments

import (
	"bytes"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidWebhook   = errors.New("invalid webhook payload")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// EventType is the closed set of webhook topics this service understands.
type EventType string

const (
	EventPayment       EventType = "payment"
	EventMerchantOrder EventType = "merchant_order"
	EventUnknown       EventType = "unknown"
)

// ParseEventType maps a loosely typed topic onto EventType, defaulting to
// EventUnknown.
func ParseEventType(raw string) EventType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "payment", "payment.created", "payment.updated":
		return EventPayment
	case "merchant_order", "topic_merchant_order_wh":
		return EventMerchantOrder
	default:
		return EventUnknown
	}
}

// FlexString decodes JSON strings and numbers alike.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type EventData struct {
	ID FlexString `json:"id"`
}

// WebhookEvent is the normalized provider notification queued for
// processing. Data.ID is the provider payment id and the dedup key.
type WebhookEvent struct {
	ID                FlexString `json:"id"`
	Type              string     `json:"type"`
	Action            string     `json:"action"`
	Data              EventData  `json:"data"`
	DateCreated       string     `json:"date_created"`
	LiveMode          bool       `json:"live_mode"`
	UserID            FlexString `json:"user_id"`
	Status            string     `json:"status,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
}

func (e WebhookEvent) PaymentID() string { return strings.TrimSpace(e.Data.ID.String()) }

func (e WebhookEvent) EventType() EventType { return ParseEventType(e.Type) }

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	MerchantID        string `json:"merchant_id"`
}

type DecodeOptions struct {
	// MidtransServerKey enables signature_key verification of Midtrans
	// notifications when set.
	MidtransServerKey string
	Now               func() time.Time
}

// DecodeWebhook accepts either the generic event shape or a raw Midtrans
// HTTP notification, and returns the normalized event.
func DecodeWebhook(raw []byte, opts DecodeOptions) (WebhookEvent, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if _, ok := probe["transaction_status"]; ok {
		var n midtransNotification
		if err := json.Unmarshal(raw, &n); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		if opts.MidtransServerKey != "" && !VerifyMidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, opts.MidtransServerKey, n.SignatureKey) {
			return WebhookEvent{}, ErrInvalidSignature
		}
		return fromMidtrans(n, opts), nil
	}

	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if ev.PaymentID() == "" {
		return WebhookEvent{}, fmt.Errorf("%w: data.id is required", ErrInvalidWebhook)
	}
	return ev, nil
}

func fromMidtrans(n midtransNotification, opts DecodeOptions) WebhookEvent {
	status := strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	// A captured card payment flagged by fraud screening is not settled yet.
	if status == "capture" && strings.EqualFold(strings.TrimSpace(n.FraudStatus), "challenge") {
		status = "challenge"
	}
	var created string
	if t, ok := ParseEventTime(n.TransactionTime); ok {
		created = t.Format(time.RFC3339)
	} else {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		created = now().UTC().Format(time.RFC3339)
	}
	paymentID := n.TransactionID
	if paymentID == "" {
		paymentID = n.OrderID
	}
	return WebhookEvent{
		ID:                FlexString(paymentID + ":" + status),
		Type:              string(EventPayment),
		Action:            "payment.updated",
		Data:              EventData{ID: FlexString(paymentID)},
		DateCreated:       created,
		LiveMode:          opts.MidtransServerKey != "" && !strings.HasPrefix(opts.MidtransServerKey, "SB-"),
		UserID:            FlexString(n.MerchantID),
		Status:            status,
		ExternalReference: n.OrderID,
	}
}

// Midtrans reports transaction_time as local Jakarta time without a zone.
const midtransTimeLayout = "2006-01-02 15:04:05"

var midtransZone = time.FixedZone("WIB", 7*60*60)

// ParseEventTime reads an RFC 3339 timestamp or a zone-less Midtrans
// transaction_time, returning it in UTC.
func ParseEventTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation(midtransTimeLayout, raw, midtransZone); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// VerifyMidtransSignature checks signature_key = sha512(order_id +
// status_code + gross_amount + server_key).
func VerifyMidtransSignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature)))) == 1
}
