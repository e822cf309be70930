package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"baseid/pkg/platform/circuit"
	"baseid/pkg/requestcontext"
)

type fakeChain struct {
	chainID  int64
	block    uint64
	err      error
	chainErr error
	calls    int
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return big.NewInt(f.chainID), nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.block++
	return f.block, nil
}

func (f *fakeChain) Close() {}

func TestMemoryAnchorsMonotonically(t *testing.T) {
	m := NewMemory("base-sepolia", WithHistory(8))
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	first, err := m.Anchor(ctx, KindDID, "did:base:a", []byte{0xab})
	require.NoError(t, err)
	second, err := m.Anchor(ctx, KindDID, "did:base:a", []byte{0xcd})
	require.NoError(t, err)

	assert.Equal(t, uint64(84532), first.ChainID)
	assert.Equal(t, "0xab", first.Digest)
	assert.Equal(t, now, first.AnchoredAt)
	assert.Greater(t, second.Block, first.Block)
	assert.Len(t, m.History(KindDID, "did:base:a"), 2)
	assert.Empty(t, m.History(KindCredential, "did:base:a"))
}

func TestMemoryHistoryIsBounded(t *testing.T) {
	ctx := context.Background()

	plain := NewMemory("base-sepolia")
	for range 3 {
		_, err := plain.Anchor(ctx, KindDID, "did:base:a", nil)
		require.NoError(t, err)
	}
	assert.Empty(t, plain.History(KindDID, "did:base:a"))
	assert.Empty(t, plain.anchors)

	bounded := NewMemory("base-sepolia", WithHistory(2))
	var last []uint64
	for range 5 {
		a, err := bounded.Anchor(ctx, KindDID, "did:base:a", nil)
		require.NoError(t, err)
		last = append(last, a.Block)
	}
	history := bounded.History(KindDID, "did:base:a")
	require.Len(t, history, 2)
	assert.Equal(t, last[3], history[0].Block)
	assert.Equal(t, last[4], history[1].Block)
}

func TestChainIDFor(t *testing.T) {
	assert.Equal(t, uint64(8453), ChainIDFor("base-mainnet"))
	assert.Equal(t, uint64(devChainID), ChainIDFor("local"))
}

type RPCSuite struct {
	suite.Suite
	chain   *fakeChain
	metrics *Metrics
	ledger  *RPC
}

func TestRPCSuite(t *testing.T) {
	suite.Run(t, new(RPCSuite))
}

func (s *RPCSuite) SetupTest() {
	s.chain = &fakeChain{chainID: 8453, block: 1000}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.ledger = NewRPC("base-mainnet", s.chain, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))),
		WithMetrics(s.metrics),
	)
}

func (s *RPCSuite) TestAnchorsAtChainHead() {
	a, err := s.ledger.Anchor(context.Background(), KindCredential, "urn:uuid:1", []byte{1, 2})
	s.Require().NoError(err)
	s.Equal(uint64(8453), a.ChainID)
	s.Equal(uint64(1001), a.Block)
	s.False(a.Degraded)
}

func (s *RPCSuite) TestFallsBackOnceCircuitOpens() {
	s.chain.err = errors.New("connection refused")

	s.Run("failure below the threshold still anchors locally", func() {
		a, err := s.ledger.Anchor(context.Background(), KindDID, "did:base:a", []byte{1})
		s.Require().NoError(err)
		s.True(a.Degraded)
		s.Equal(0.0, testutil.ToFloat64(s.metrics.Degraded))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.FallbackAnchors))
	})

	s.Run("threshold reached opens the circuit", func() {
		a, err := s.ledger.Anchor(context.Background(), KindDID, "did:base:a", []byte{1})
		s.Require().NoError(err)
		s.True(a.Degraded)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Degraded))
		s.Equal(2.0, testutil.ToFloat64(s.metrics.FallbackAnchors))
	})

	s.Run("recovery closes the circuit", func() {
		s.chain.err = nil
		a, err := s.ledger.Anchor(context.Background(), KindDID, "did:base:a", []byte{1})
		s.Require().NoError(err)
		s.False(a.Degraded)
		s.Equal(0.0, testutil.ToFloat64(s.metrics.Degraded))
	})
}

func (s *RPCSuite) TestChainIDRetriedAfterFailure() {
	s.chain.chainErr = errors.New("timeout")
	degraded, err := s.ledger.Anchor(context.Background(), KindDID, "did:base:a", nil)
	s.Require().NoError(err)
	s.True(degraded.Degraded)

	s.chain.chainErr = nil
	a, err := s.ledger.Anchor(context.Background(), KindDID, "did:base:a", nil)
	s.Require().NoError(err)
	s.Equal(uint64(8453), a.ChainID)
}
