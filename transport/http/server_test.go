package http

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/pairgate"
	"github.com/layer-3/pairgate/adapters/siwe"
	"github.com/layer-3/pairgate/adapters/store"
	"github.com/layer-3/pairgate/adapters/tokenizer"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/ports"
	"github.com/layer-3/pairgate/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testDomain         = "pairgate.test"
	testCallbackSecret = "callback-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAttestation struct {
	hash string
	err  error
}

func (s stubAttestation) VerifyProof(ctx context.Context, proof core.AttestationProof, action, signal string) (string, error) {
	return s.hash, s.err
}

type fixture struct {
	router      *gin.Engine
	server      *httptest.Server
	coordinator *service.Coordinator
	ledger      ports.Ledger
	quotaStore  ports.QuotaStore
}

type fixtureOptions struct {
	attestation ports.AttestationVerifier
	dailyLimit  int
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	if opts.attestation == nil {
		opts.attestation = stubAttestation{hash: "0xnullifier"}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	f := &fixture{
		ledger:     store.NewMemoryLedger(),
		quotaStore: store.NewMemoryQuotaStore(),
	}

	auth := service.NewAuthService(
		store.NewMemoryNonceStore(),
		f.ledger,
		siwe.NewVerifier(siwe.WithDomain(testDomain)),
		opts.attestation,
		m,
		logger,
	)
	quota := service.NewQuotaService(f.quotaStore, opts.dailyLimit, logger)
	payments := service.NewPaymentService(store.NewMemoryPaymentStore(), quota, 5, logger)
	registry := service.NewRegistry(func(n int) { m.Connections.Set(float64(n)) })
	f.coordinator = service.NewCoordinator(registry, m, logger, service.WithTickInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.coordinator.Run(ctx) }()

	f.router = SetupRouter(Dependencies{
		Auth:           auth,
		Tokenizer:      tokenizer.NewJWTTokenizer(key),
		Registry:       registry,
		Coordinator:    f.coordinator,
		Quota:          quota,
		Payments:       payments,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
		CallbackSecret: testCallbackSecret,
	})
	f.server = httptest.NewServer(f.router)

	t.Cleanup(func() {
		f.server.Close()
		cancel()
		<-f.coordinator.Done()
	})
	return f
}

func (f *fixture) verify(t *testing.T, wallet string) {
	t.Helper()
	require.NoError(t, f.ledger.Upsert(context.Background(), core.VerificationRecord{
		WalletAddress:   wallet,
		AttestationHash: "0x" + strings.TrimPrefix(strings.ToLower(wallet), "0x"),
		Verified:        true,
		VerifiedAt:      time.Now(),
	}))
}

func (f *fixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// callback posts a payment provider callback, signed with secret unless it is empty
func (f *fixture) callback(t *testing.T, body any, secret string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-payment", strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(CallbackSignatureHeader, hex.EncodeToString(callbackMAC(secret, data)))
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// signedIn completes the sign-in handshake with a fresh key and returns the client
// holding the session cookie together with the signing wallet
func (f *fixture) signedIn(t *testing.T, username string) (*pairgate.AuthClient, string) {
	t.Helper()
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := pairgate.NewAuthClient(f.server.URL)
	require.NoError(t, err)

	nonce, err := client.Nonce(ctx)
	require.NoError(t, err)
	result, err := client.VerifySIWE(ctx, signIn(t, key, nonce, username), nonce)
	require.NoError(t, err)
	return client, result.Address
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func signIn(t *testing.T, key *ecdsa.PrivateKey, nonce, username string) core.SignedPayload {
	t.Helper()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message := fmt.Sprintf("%s wants you to sign in with your Ethereum account:\n%s\n\nSign in to meet someone new.\n\nURI: https://%s\nVersion: 1\nChain ID: 480\nNonce: %s\nIssued At: %s",
		testDomain, address, testDomain, nonce, time.Now().UTC().Format(time.RFC3339))

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	return core.SignedPayload{
		Status:    "success",
		Message:   message,
		Signature: hexutil.Encode(sig),
		Address:   address,
		Version:   1,
		Username:  username,
	}
}

func wsURL(f *fixture) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}
