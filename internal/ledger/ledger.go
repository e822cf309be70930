// Package ledger records registry writes against the configured chain.
//
// Every DID and credential write is anchored: the ledger returns a receipt
// holding the chain id, the block height observed at write time and the
// digest of the written state. Contract writes are not performed; the receipt
// pins the write to a point in the chain's history.
package ledger

import (
	"context"
	"encoding/hex"
	"time"
)

// Kind names the registry component an anchor belongs to.
type Kind string

const (
	KindDID        Kind = "did"
	KindCredential Kind = "credential"
	KindRevocation Kind = "revocation"
)

// Anchor is a ledger receipt for one registry write.
type Anchor struct {
	Network    string    `json:"network"`
	ChainID    uint64    `json:"chainId"`
	Block      uint64    `json:"block"`
	Kind       Kind      `json:"kind"`
	Key        string    `json:"key"`
	Digest     string    `json:"digest"`
	AnchoredAt time.Time `json:"anchoredAt"`
	// Degraded is set when the receipt came from the local fallback while
	// the chain endpoint was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Ledger anchors registry writes.
type Ledger interface {
	Anchor(ctx context.Context, kind Kind, key string, digest []byte) (Anchor, error)
	Network() string
}

var knownChains = map[string]uint64{
	"base-mainnet": 8453,
	"base-sepolia": 84532,
	"base-goerli":  84531,
}

// devChainID is the chain id reported for unknown networks (a local node).
const devChainID = 31337

// ChainIDFor returns the well-known chain id of network.
func ChainIDFor(network string) uint64 {
	if id, ok := knownChains[network]; ok {
		return id
	}
	return devChainID
}

func encodeDigest(digest []byte) string {
	return "0x" + hex.EncodeToString(digest)
}
