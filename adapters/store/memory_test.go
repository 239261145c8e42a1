package store

import (
	"context"
	"testing"
	"time"

	"github.com/layer-3/pairgate/adapters/store/storetest"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryNonceStore(t *testing.T) {
	suite.Run(t, &storetest.NonceStoreSuite{New: func() ports.NonceStore { return NewMemoryNonceStore() }})
}

func TestMemoryLedger(t *testing.T) {
	suite.Run(t, &storetest.LedgerSuite{New: NewMemoryLedger})
}

func TestMemoryQuotaStore(t *testing.T) {
	suite.Run(t, &storetest.QuotaSuite{New: NewMemoryQuotaStore})
}

func TestMemoryPaymentStore(t *testing.T) {
	suite.Run(t, &storetest.PaymentSuite{New: NewMemoryPaymentStore})
}

func TestMemoryNonceExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryNonceStore(WithClock(func() time.Time { return now })).(*MemoryNonceStore)

	require.NoError(t, s.Put(ctx, core.NonceRecord{Value: "n1", OwnerKey: "K1", ExpiresAt: now.Add(time.Minute)}))

	err := s.Consume(ctx, "K1", "n1", now.Add(time.Minute))
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
	assert.Equal(t, 0, s.Len(), "an expired record is removed when it is looked up")
}

func TestMemoryNonceSweepOnPut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryNonceStore(WithClock(func() time.Time { return now })).(*MemoryNonceStore)

	require.NoError(t, s.Put(ctx, core.NonceRecord{Value: "old", OwnerKey: "K1", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.Put(ctx, core.NonceRecord{Value: "new", OwnerKey: "K2", ExpiresAt: now.Add(time.Minute)}))

	assert.Equal(t, 1, s.Len())
}
