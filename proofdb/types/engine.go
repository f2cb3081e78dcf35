package types

import "context"

type ProofKind uint16

const (
	ProofKindBlock      ProofKind = 1
	ProofKindAggregated ProofKind = 2
)

func (k ProofKind) String() string {
	switch k {
	case ProofKindBlock:
		return "block"
	case ProofKindAggregated:
		return "aggregated"
	}
	return "unknown"
}

// ProofKey identifies a stored proof. Block proofs use FirstBlock == LastBlock.
type ProofKey struct {
	Kind       ProofKind
	FirstBlock uint64
	LastBlock  uint64
}

func BlockProofKey(number uint64) ProofKey {
	return ProofKey{Kind: ProofKindBlock, FirstBlock: number, LastBlock: number}
}

func AggregatedProofKey(firstBlock uint64, lastBlock uint64) ProofKey {
	return ProofKey{Kind: ProofKindAggregated, FirstBlock: firstBlock, LastBlock: lastBlock}
}

type ProofDbEngine interface {
	Close() error
	// GetProof returns nil data when the proof is not stored.
	GetProof(ctx context.Context, key ProofKey) ([]byte, error)
	// AddProof stores the proof unless it exists already. Returns whether it was added.
	AddProof(ctx context.Context, key ProofKey, data []byte) (bool, error)
}
