package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"baseid/pkg/platform/circuit"
	"baseid/pkg/requestcontext"
)

// ChainReader is the subset of ethclient.Client the ledger needs.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

var tracer = otel.Tracer("baseid/ledger")

// RPC anchors against a live chain through JSON-RPC. A failed call anchors
// through the in-memory fallback instead, flagged as degraded. The circuit
// tracks the outage for logging and the degraded gauge.
type RPC struct {
	network  string
	client   ChainReader
	fallback *Memory
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics

	chainMu sync.Mutex
	chainID uint64
}

type RPCOption func(*RPC)

func WithBreaker(b *circuit.Breaker) RPCOption {
	return func(r *RPC) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithMetrics(m *Metrics) RPCOption {
	return func(r *RPC) {
		r.metrics = m
	}
}

// Dial connects to url with go-ethereum's ethclient.
func Dial(ctx context.Context, network, url string, logger *slog.Logger, opts ...RPCOption) (*RPC, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	return NewRPC(network, client, logger, opts...), nil
}

// NewRPC wraps an existing chain reader.
func NewRPC(network string, client ChainReader, logger *slog.Logger, opts ...RPCOption) *RPC {
	r := &RPC{
		network:  network,
		client:   client,
		fallback: NewMemory(network),
		breaker:  circuit.New("ledger-rpc"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RPC) Network() string {
	return r.network
}

func (r *RPC) Anchor(ctx context.Context, kind Kind, key string, digest []byte) (Anchor, error) {
	ctx, span := tracer.Start(ctx, "ledger.Anchor",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ledger.kind", string(kind)), attribute.String("ledger.network", r.network)),
	)
	defer span.End()

	chainID, err := r.resolveChainID(ctx)
	if err == nil {
		var block uint64
		block, err = r.client.BlockNumber(ctx)
		if err == nil {
			if _, change := r.breaker.RecordSuccess(); change.Closed {
				r.logger.InfoContext(ctx, "ledger rpc recovered", "network", r.network)
				r.metrics.setDegraded(false)
			}
			return Anchor{
				Network:    r.network,
				ChainID:    chainID,
				Block:      block,
				Kind:       kind,
				Key:        key,
				Digest:     encodeDigest(digest),
				AnchoredAt: requestcontext.Now(ctx),
			}, nil
		}
	}

	span.RecordError(err)
	_, change := r.breaker.RecordFailure()
	switch {
	case change.Opened:
		r.logger.WarnContext(ctx, "ledger rpc circuit opened, anchoring locally",
			"network", r.network,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		r.metrics.setDegraded(true)
	case !r.breaker.IsOpen():
		r.logger.WarnContext(ctx, "ledger rpc failed, anchoring locally",
			"network", r.network,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	a, ferr := r.fallback.Anchor(ctx, kind, key, digest)
	if ferr != nil {
		return Anchor{}, ferr
	}
	a.Degraded = true
	r.metrics.incFallback()
	return a, nil
}

// resolveChainID reads the chain id once; failures are retried on the next call.
func (r *RPC) resolveChainID(ctx context.Context) (uint64, error) {
	r.chainMu.Lock()
	defer r.chainMu.Unlock()
	if r.chainID != 0 {
		return r.chainID, nil
	}
	id, err := r.client.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	r.chainID = id.Uint64()
	return r.chainID, nil
}

// Health checks the endpoint directly, ignoring the breaker.
func (r *RPC) Health(ctx context.Context) error {
	_, err := r.client.BlockNumber(ctx)
	return err
}

func (r *RPC) Close() {
	r.client.Close()
}
