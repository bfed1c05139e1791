package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
)

func base64UrlEncode(input []byte) string {
	return base64.RawURLEncoding.EncodeToString(input)
}

func base64UrlDecode(input string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(input, "="))
}

func trackingPayload(outletID int64, orderCode string) string {
	return strconv.FormatInt(outletID, 10) + ":" + orderCode
}

func signTracking(secret, payloadB64 string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadB64))
	return mac.Sum(nil)
}

// CreateOrderTrackingToken issues the token a customer uses to follow one
// order without an account.
func CreateOrderTrackingToken(secret string, outletID int64, orderCode string) string {
	payloadB64 := base64UrlEncode([]byte(trackingPayload(outletID, orderCode)))
	return payloadB64 + "." + base64UrlEncode(signTracking(secret, payloadB64))
}

func VerifyOrderTrackingToken(secret, token string, outletID int64, orderCode string) bool {
	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok || payloadB64 == "" || sigB64 == "" {
		return false
	}

	actual, err := base64UrlDecode(sigB64)
	if err != nil {
		return false
	}
	if !hmac.Equal(actual, signTracking(secret, payloadB64)) {
		return false
	}

	payloadRaw, err := base64UrlDecode(payloadB64)
	if err != nil {
		return false
	}
	return string(payloadRaw) == trackingPayload(outletID, orderCode)
}
