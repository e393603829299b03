// internal/delivery/signer_test.go
package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ispnexus/webhook-service/internal/endpoints"
)

func TestSignProducesExpectedSHA256Hex(t *testing.T) {
	secret := "whsec_test_secret"
	payload := []byte(`{"event_id":"abc","event_type":"billing.invoice.paid"}`)
	timestamp := int64(1700000000)

	header, err := Sign(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, secret, timestamp, payload)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("1700000000." + string(payload)))
	expected := "t=1700000000,v1=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, header)
}

func TestSignHeaderShape(t *testing.T) {
	header, err := Sign(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "secret-value-123", 42, []byte("{}"))
	require.NoError(t, err)

	parts := strings.SplitN(header, ",", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "t=42", parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "v1="))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"customer_id":"c-1","plan":"fiber_100"}`)

	for _, algorithm := range []string{
		endpoints.AlgorithmHMACSHA256,
		endpoints.AlgorithmHMACSHA512,
		endpoints.AlgorithmHMACSHA1,
	} {
		for _, encoding := range []string{endpoints.EncodingHex, endpoints.EncodingBase64} {
			header, err := Sign(algorithm, encoding, "shared-secret", 1700000000, payload)
			require.NoError(t, err, "%s/%s", algorithm, encoding)

			ok, err := Verify(algorithm, encoding, "shared-secret", 1700000000, payload, header)
			require.NoError(t, err)
			assert.True(t, ok, "%s/%s", algorithm, encoding)
		}
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	header, err := Sign(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "shared-secret", 1700000000, []byte(`{"amount":"10.00"}`))
	require.NoError(t, err)

	ok, err := Verify(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "shared-secret", 1700000000, []byte(`{"amount":"99.00"}`), header)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	header, err := Sign(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "secret-a", 1, payload)
	require.NoError(t, err)

	ok, err := Verify(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "secret-b", 1, payload, header)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignUnsupportedAlgorithm(t *testing.T) {
	_, err := Sign("hmac-md5", endpoints.EncodingHex, "secret", 1, []byte("{}"))
	assert.Error(t, err)
}

func TestSignUnsupportedEncoding(t *testing.T) {
	_, err := Sign(endpoints.AlgorithmHMACSHA256, "base32", "secret", 1, []byte("{}"))
	assert.Error(t, err)
}

func TestSignDefaultsToSHA256Hex(t *testing.T) {
	payload := []byte(`{"k":"v"}`)
	explicit, err := Sign(endpoints.AlgorithmHMACSHA256, endpoints.EncodingHex, "secret", 7, payload)
	require.NoError(t, err)

	defaulted, err := Sign("", "", "secret", 7, payload)
	require.NoError(t, err)
	assert.Equal(t, explicit, defaulted)
}
