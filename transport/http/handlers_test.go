package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/pairgate"
	"github.com/layer-3/pairgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, cookies []*http.Cookie) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", SessionCookie)
	return nil
}

func TestNonceMintsSessionOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/nonce", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)["nonce"]
	assert.Len(t, first, 64)

	cookie := sessionCookie(t, w.Result().Cookies())
	assert.True(t, cookie.HttpOnly)

	w = f.do(t, http.MethodGet, "/api/nonce", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "a valid session keeps its cookie")
	assert.NotEqual(t, first, decode(t, w)["nonce"])
}

func TestVerifySIWEHandshake(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	client, err := pairgate.NewAuthClient(f.server.URL)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce, err := client.Nonce(ctx)
	require.NoError(t, err)

	payload := signIn(t, key, nonce, "alice")
	result, err := client.VerifySIWE(ctx, payload, nonce)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), result.Address)
	assert.Equal(t, "alice", result.Username)

	_, err = client.VerifySIWE(ctx, payload, nonce)
	var statusErr *pairgate.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode, "replayed nonce")
}

func TestVerifySIWERejectsWrongNonceAndKeepsOriginal(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	client, err := pairgate.NewAuthClient(f.server.URL)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce, err := client.Nonce(ctx)
	require.NoError(t, err)

	_, err = client.VerifySIWE(ctx, signIn(t, key, "deadbeef", ""), "deadbeef")
	var statusErr *pairgate.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "Invalid nonce", statusErr.Message)

	result, err := client.VerifySIWE(ctx, signIn(t, key, nonce, ""), nonce)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestVerifySIWEWithoutSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodPost, "/api/verify-siwe", map[string]any{"nonce": "abc", "payload": map[string]any{}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decode(t, w)["isValid"])

	w = f.do(t, http.MethodPost, "/api/verify-siwe", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyWorldID(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	wallet := "0x1111111111111111111111111111111111111111"

	w := f.do(t, http.MethodPost, "/api/verify-worldid", map[string]any{
		"payload": map[string]any{"proof": "0x01", "merkle_root": "0x02", "nullifier_hash": "0xnullifier"},
		"action":  "login",
		"signal":  wallet,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, "0xnullifier", body["nullifier_hash"])

	record, err := f.ledger.FindByWallet(context.Background(), wallet)
	require.NoError(t, err)
	assert.True(t, record.Valid())
}

func TestVerifyWorldIDFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "missing attestation", err: core.ErrMissingAttestation, code: http.StatusBadRequest},
		{name: "rejected proof", err: core.ErrAttestationFailed, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{attestation: stubAttestation{err: tt.err}})

			w := f.do(t, http.MethodPost, "/api/verify-worldid", map[string]any{
				"payload": map[string]any{},
				"action":  "login",
				"signal":  "0x1111111111111111111111111111111111111111",
			})
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, false, decode(t, w)["verified"])
		})
	}
}

func TestQueueStatusAndHealth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/queue-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(0), body["queueSize"])
	assert.NotZero(t, body["timestamp"])

	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pairgate_queue_size")
}

func TestPaymentsGrantQuota(t *testing.T) {
	f := newFixture(t, fixtureOptions{dailyLimit: 2})
	wallet := "0x2222222222222222222222222222222222222222"

	w := f.do(t, http.MethodGet, "/api/quota", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/initiate-payment", map[string]any{"wallet": wallet, "amount": "1.5"})
	require.Equal(t, http.StatusOK, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	w = f.callback(t, map[string]any{
		"reference":      id,
		"transaction_id": "tx-1",
		"status":         "confirmed",
	}, testCallbackSecret)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "confirmed", body["status"])

	w = f.do(t, http.MethodGet, "/api/quota?wallet="+wallet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(7), body["limit"])
	assert.Equal(t, float64(7), body["remaining"])
	assert.Equal(t, float64(0), body["used"])

	w = f.callback(t, map[string]any{"reference": "missing", "status": "confirmed"}, testCallbackSecret)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/initiate-payment", map[string]any{"wallet": wallet, "amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentCallbackRequiresSignature(t *testing.T) {
	f := newFixture(t, fixtureOptions{dailyLimit: 2})
	wallet := "0x6666666666666666666666666666666666666666"

	w := f.do(t, http.MethodPost, "/api/initiate-payment", map[string]any{"wallet": wallet, "amount": "1"})
	require.Equal(t, http.StatusOK, w.Code)
	confirm := map[string]any{"reference": decode(t, w)["id"], "status": "confirmed"}

	w = f.do(t, http.MethodPost, "/api/confirm-payment", confirm)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unsigned")

	w = f.callback(t, confirm, "guessed-secret")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "wrong secret")

	w = f.do(t, http.MethodGet, "/api/quota?wallet="+wallet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["limit"], "no credits without a signed callback")

	w = f.callback(t, confirm, testCallbackSecret)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/quota?wallet="+wallet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode(t, w)["limit"])
}

func TestVerifySIWEBindsSessionToWallet(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/nonce", nil)
	require.Equal(t, http.StatusOK, w.Code)
	nonce, _ := decode(t, w)["nonce"].(string)
	anonymous := sessionCookie(t, w.Result().Cookies())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/api/verify-siwe", map[string]any{
		"payload": signIn(t, key, nonce, "ivy"),
		"nonce":   nonce,
	}, anonymous)
	require.Equal(t, http.StatusOK, w.Code)

	signedIn := sessionCookie(t, w.Result().Cookies())
	assert.NotEqual(t, anonymous.Value, signedIn.Value)
	assert.True(t, signedIn.HttpOnly)

	w = f.do(t, http.MethodGet, "/api/nonce", nil, signedIn)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "the signed-in session keeps its cookie")
}
