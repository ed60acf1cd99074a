package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateSignature creates the HMAC-SHA256 signature Stripe computes for a
// webhook payload. The canonical string format is: "{timestamp}.{payload}"
func GenerateSignature(secret string, timestamp int64, payload []byte) string {
	canonical := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a Stripe-Signature header value for payload.
// Used by local tooling and tests that replay events against the webhook.
func SignatureHeader(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, GenerateSignature(secret, ts, payload))
}
