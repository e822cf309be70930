package ledger

import (
	"context"
	"sync"

	"baseid/pkg/requestcontext"
)

// Memory is an in-process ledger with a monotonic block counter. It backs
// development, tests and the degraded path of RPC.
type Memory struct {
	network string
	chainID uint64
	// perKey bounds the recorded history; zero records none.
	perKey int

	mu      sync.Mutex
	block   uint64
	anchors map[string][]Anchor
}

type MemoryOption func(*Memory)

// WithHistory keeps the last perKey anchors of every key for History.
func WithHistory(perKey int) MemoryOption {
	return func(m *Memory) {
		m.perKey = perKey
	}
}

func NewMemory(network string, opts ...MemoryOption) *Memory {
	m := &Memory{
		network: network,
		chainID: ChainIDFor(network),
		anchors: make(map[string][]Anchor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Network() string {
	return m.network
}

func (m *Memory) Anchor(ctx context.Context, kind Kind, key string, digest []byte) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.block++
	a := Anchor{
		Network:    m.network,
		ChainID:    m.chainID,
		Block:      m.block,
		Kind:       kind,
		Key:        key,
		Digest:     encodeDigest(digest),
		AnchoredAt: requestcontext.Now(ctx),
	}
	if m.perKey > 0 {
		id := string(kind) + ":" + key
		history := append(m.anchors[id], a)
		if len(history) > m.perKey {
			history = append([]Anchor(nil), history[len(history)-m.perKey:]...)
		}
		m.anchors[id] = history
	}
	return a, nil
}

// History returns the anchors recorded for key, oldest first. It is empty
// unless the ledger was built WithHistory.
func (m *Memory) History(kind Kind, key string) []Anchor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Anchor(nil), m.anchors[string(kind)+":"+key]...)
}
