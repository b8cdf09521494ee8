// internal/utils/crypto.go
package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentSignature is the hex HMAC-SHA256 of "providerOrderID|providerPaymentID"
// keyed with the gateway secret.
func PaymentSignature(secret, providerOrderID, providerPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature compares in constant time. An empty secret never verifies.
func VerifyPaymentSignature(secret, providerOrderID, providerPaymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := PaymentSignature(secret, providerOrderID, providerPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
