package utils

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// GatewayChecksum is the SHA-512 hex digest the payment gateway signs each
// settlement post with: transactionID + merchantId + transactionRRN + salt.
func GatewayChecksum(transactionID, merchantID, rrn, salt string) string {
	sum := sha512.Sum512([]byte(transactionID + merchantID + rrn + salt))
	return hex.EncodeToString(sum[:])
}

// VerifyGatewayChecksum compares case-insensitively; gateways send upper or lower hex.
func VerifyGatewayChecksum(received, transactionID, merchantID, rrn, salt string) bool {
	received = strings.TrimSpace(received)
	if received == "" {
		return false
	}
	return strings.EqualFold(received, GatewayChecksum(transactionID, merchantID, rrn, salt))
}
