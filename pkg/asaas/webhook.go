package asaas

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	// HeaderWebhookToken carries the shared token configured on the provider dashboard.
	HeaderWebhookToken = "asaas-access-token"
	// HeaderWebhookSignature carries the optional HMAC-SHA256 hex digest of the raw body.
	HeaderWebhookSignature = "asaas-signature"
)

// Event is a webhook notification envelope.
type Event struct {
	ID           string        `json:"id"`
	Event        string        `json:"event"`
	DateCreated  string        `json:"dateCreated,omitempty"`
	Payment      *Payment      `json:"payment,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// VerifyToken compares the provided token against the configured one in
// constant time.
func VerifyToken(provided, expected string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// VerifySignature checks the hex HMAC-SHA256 of body.
func VerifySignature(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// Sign returns the hex HMAC-SHA256 digest of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
