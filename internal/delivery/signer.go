// internal/delivery/signer.go
package delivery

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"github.com/ispnexus/webhook-service/internal/endpoints"
)

// Sign computes the signature over the canonical payload bytes prefixed
// with the unix timestamp ("<ts>.<body>"), so receivers can reject replays.
// The header value is "t=<ts>,v1=<sig>"; receivers recompute over the raw
// request body with the shared secret.
func Sign(algorithm, encoding, secret string, timestamp int64, payload []byte) (string, error) {
	signature, err := computeHMAC(algorithm, secret, timestamp, payload)
	if err != nil {
		return "", err
	}

	var encoded string
	switch encoding {
	case endpoints.EncodingBase64:
		encoded = base64.StdEncoding.EncodeToString(signature)
	case endpoints.EncodingHex, "":
		encoded = hex.EncodeToString(signature)
	default:
		return "", fmt.Errorf("unsupported signature encoding %q", encoding)
	}

	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + encoded, nil
}

func computeHMAC(algorithm, secret string, timestamp int64, payload []byte) ([]byte, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case endpoints.AlgorithmHMACSHA256, "":
		newHash = sha256.New
	case endpoints.AlgorithmHMACSHA512:
		newHash = sha512.New
	case endpoints.AlgorithmHMACSHA1:
		newHash = sha1.New
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", algorithm)
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil), nil
}

// Verify recomputes the signature and compares in constant time. Exposed
// for receiver implementations and tests.
func Verify(algorithm, encoding, secret string, timestamp int64, payload []byte, header string) (bool, error) {
	expected, err := Sign(algorithm, encoding, secret, timestamp, payload)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(header)), nil
}
