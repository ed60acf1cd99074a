package billing

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test123"

func eventPayload(id, typ string, created int64, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2020-08-27","type":%q,"created":%d,"data":{"object":%s}}`,
		id, typ, created, object))
}

func TestGenerateSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	sig := GenerateSignature(testSecret, 1736600000, payload)
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64", len(sig))
	}
	if sig != GenerateSignature(testSecret, 1736600000, payload) {
		t.Error("signature is not deterministic")
	}
	if sig == GenerateSignature(testSecret, 1736600001, payload) {
		t.Error("different timestamp should produce different signature")
	}
	if sig == GenerateSignature(testSecret+"x", 1736600000, payload) {
		t.Error("different secret should produce different signature")
	}
}

func TestParseEvent_SubscriptionDeleted(t *testing.T) {
	now := time.Now()
	payload := eventPayload("evt_del", EventSubscriptionDeleted, now.Unix(),
		`{"id":"sub_123","object":"subscription","customer":"cus_123","status":"canceled","cancel_at_period_end":false,"current_period_end":1700000000}`)

	ev, err := ParseEvent(payload, SignatureHeader(testSecret, now, payload), testSecret)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}

	if ev.ID != "evt_del" || ev.Type != EventSubscriptionDeleted {
		t.Errorf("unexpected event header: %+v", ev)
	}
	if ev.Created.Unix() != now.Unix() {
		t.Errorf("Created = %v, want %v", ev.Created.Unix(), now.Unix())
	}
	if ev.Subscription == nil {
		t.Fatal("expected subscription to be decoded")
	}
	if ev.Subscription.ID != "sub_123" || ev.Subscription.CustomerID != "cus_123" {
		t.Errorf("unexpected subscription: %+v", ev.Subscription)
	}
	if ev.Subscription.Status != "canceled" {
		t.Errorf("Status = %q, want canceled", ev.Subscription.Status)
	}
}

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	now := time.Now()
	payload := eventPayload("evt_co", EventCheckoutCompleted, now.Unix(),
		`{"id":"cs_123","object":"checkout.session","customer":"cus_9","subscription":"sub_9","payment_status":"paid","status":"complete"}`)

	ev, err := ParseEvent(payload, SignatureHeader(testSecret, now, payload), testSecret)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}

	sess := ev.CheckoutSession
	if sess == nil {
		t.Fatal("expected checkout session to be decoded")
	}
	if sess.CustomerID != "cus_9" || sess.SubscriptionID != "sub_9" {
		t.Errorf("unexpected session ids: %+v", sess)
	}
	if !sess.IsPaid() {
		t.Error("expected session to be paid")
	}
	if sess.Subscription != nil {
		t.Error("unexpanded subscription should not be populated")
	}
}

func TestParseEvent_InvalidSignature(t *testing.T) {
	now := time.Now()
	payload := eventPayload("evt_1", EventSubscriptionUpdated, now.Unix(), `{"id":"sub_1","object":"subscription"}`)

	tests := []struct {
		name      string
		signature string
		want      error
	}{
		{"missing", "", ErrSignatureMissing},
		{"wrong secret", SignatureHeader("whsec_other", now, payload), ErrInvalidSignature},
		{"garbage", "not-a-signature", ErrInvalidSignature},
		{"stale timestamp", SignatureHeader(testSecret, now.Add(-time.Hour), payload), ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent(payload, tt.signature, testSecret)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseEvent_UnhandledType(t *testing.T) {
	now := time.Now()
	payload := eventPayload("evt_inv", "invoice.paid", now.Unix(), `{"id":"in_1","object":"invoice"}`)

	ev, err := ParseEvent(payload, SignatureHeader(testSecret, now, payload), testSecret)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if ev.Subscription != nil || ev.CheckoutSession != nil {
		t.Error("unhandled event should carry no object")
	}
}

func TestSubscription_EffectiveCancelAt(t *testing.T) {
	tests := []struct {
		name string
		sub  *Subscription
		want int64
	}{
		{"nil", nil, 0},
		{"cancel_at set", &Subscription{CancelAt: 10, CurrentPeriodEnd: 20}, 10},
		{"period end fallback", &Subscription{CurrentPeriodEnd: 20}, 20},
	}

	for _, tt := range tests {
		if got := tt.sub.EffectiveCancelAt(); got != tt.want {
			t.Errorf("%s: EffectiveCancelAt = %d, want %d", tt.name, got, tt.want)
		}
	}
}
