package optypes

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AggregatedActionType is the discriminant of an AggregatedOperation. The string value is persisted.
type AggregatedActionType string

const (
	ActionCommitBlocks              AggregatedActionType = "CommitBlocks"
	ActionCreateProofBlocks         AggregatedActionType = "CreateProofBlocks"
	ActionPublishProofBlocksOnchain AggregatedActionType = "PublishProofBlocksOnchain"
	ActionExecuteBlocks             AggregatedActionType = "ExecuteBlocks"
)

// AggregatedActionTypes lists all action types in planner order.
var AggregatedActionTypes = []AggregatedActionType{
	ActionCommitBlocks,
	ActionCreateProofBlocks,
	ActionPublishProofBlocksOnchain,
	ActionExecuteBlocks,
}

// ErrCorruptOperation is returned when a persisted aggregated operation cannot be decoded.
var ErrCorruptOperation = errors.New("corrupt aggregated operation")

func ParseAggregatedActionType(s string) (AggregatedActionType, error) {
	for _, actionType := range AggregatedActionTypes {
		if string(actionType) == s {
			return actionType, nil
		}
	}
	return "", fmt.Errorf("unknown aggregated action type %q", s)
}

func (t AggregatedActionType) String() string {
	return string(t)
}

// IsOnchain reports whether operations of this type are submitted to the base chain.
func (t AggregatedActionType) IsOnchain() bool {
	return t == ActionCommitBlocks || t == ActionPublishProofBlocksOnchain || t == ActionExecuteBlocks
}

type BlocksCommitOperation struct {
	LastCommittedBlock *Block   `json:"lastCommittedBlock"`
	Blocks             []*Block `json:"blocks"`
}

type BlocksCreateProofOperation struct {
	Blocks      []*Block `json:"blocks"`
	ProofsToPad uint64   `json:"proofsToPad"`
}

type BlocksProofOperation struct {
	Blocks []*Block `json:"blocks"`
	Proof  []byte   `json:"proof"`
}

type BlocksExecuteOperation struct {
	Blocks []*Block `json:"blocks"`
}

// AggregatedOperation is a tagged union over the four aggregated operation kinds.
// ActionType selects the variant; exactly the matching payload pointer is set.
type AggregatedOperation struct {
	ActionType AggregatedActionType

	Commit       *BlocksCommitOperation
	CreateProof  *BlocksCreateProofOperation
	PublishProof *BlocksProofOperation
	Execute      *BlocksExecuteOperation
}

func NewCommitOperation(op *BlocksCommitOperation) *AggregatedOperation {
	return &AggregatedOperation{ActionType: ActionCommitBlocks, Commit: op}
}

func NewCreateProofOperation(op *BlocksCreateProofOperation) *AggregatedOperation {
	return &AggregatedOperation{ActionType: ActionCreateProofBlocks, CreateProof: op}
}

func NewPublishProofOperation(op *BlocksProofOperation) *AggregatedOperation {
	return &AggregatedOperation{ActionType: ActionPublishProofBlocksOnchain, PublishProof: op}
}

func NewExecuteOperation(op *BlocksExecuteOperation) *AggregatedOperation {
	return &AggregatedOperation{ActionType: ActionExecuteBlocks, Execute: op}
}

// Blocks returns the ordered blocks covered by the operation.
func (op *AggregatedOperation) Blocks() []*Block {
	switch op.ActionType {
	case ActionCommitBlocks:
		if op.Commit != nil {
			return op.Commit.Blocks
		}
	case ActionCreateProofBlocks:
		if op.CreateProof != nil {
			return op.CreateProof.Blocks
		}
	case ActionPublishProofBlocksOnchain:
		if op.PublishProof != nil {
			return op.PublishProof.Blocks
		}
	case ActionExecuteBlocks:
		if op.Execute != nil {
			return op.Execute.Blocks
		}
	}
	return nil
}

// BlockRange returns the first and last block number covered by the operation.
func (op *AggregatedOperation) BlockRange() (uint64, uint64) {
	blocks := op.Blocks()
	if len(blocks) == 0 {
		return 0, 0
	}
	return blocks[0].Number, blocks[len(blocks)-1].Number
}

func (op *AggregatedOperation) String() string {
	first, last := op.BlockRange()
	return fmt.Sprintf("%v [%v,%v]", op.ActionType, first, last)
}

// EncodePayload serializes the variant payload only. The discriminant and block range are stored
// alongside it.
func (op *AggregatedOperation) EncodePayload() ([]byte, error) {
	var payload any
	switch op.ActionType {
	case ActionCommitBlocks:
		payload = op.Commit
	case ActionCreateProofBlocks:
		payload = op.CreateProof
	case ActionPublishProofBlocksOnchain:
		payload = op.PublishProof
	case ActionExecuteBlocks:
		payload = op.Execute
	default:
		return nil, fmt.Errorf("cannot encode aggregated operation with action type %q", op.ActionType)
	}
	if payload == nil || len(op.Blocks()) == 0 {
		return nil, fmt.Errorf("cannot encode empty %v operation", op.ActionType)
	}
	return json.Marshal(payload)
}

// DecodeAggregatedOperation rebuilds an operation from its persisted discriminant and payload.
func DecodeAggregatedOperation(actionType string, payload []byte) (*AggregatedOperation, error) {
	opType, err := ParseAggregatedActionType(actionType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptOperation, err)
	}

	op := &AggregatedOperation{ActionType: opType}
	var target any
	switch opType {
	case ActionCommitBlocks:
		op.Commit = &BlocksCommitOperation{}
		target = op.Commit
	case ActionCreateProofBlocks:
		op.CreateProof = &BlocksCreateProofOperation{}
		target = op.CreateProof
	case ActionPublishProofBlocksOnchain:
		op.PublishProof = &BlocksProofOperation{}
		target = op.PublishProof
	case ActionExecuteBlocks:
		op.Execute = &BlocksExecuteOperation{}
		target = op.Execute
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("%w: %v payload: %v", ErrCorruptOperation, opType, err)
	}
	if len(op.Blocks()) == 0 {
		return nil, fmt.Errorf("%w: %v payload without blocks", ErrCorruptOperation, opType)
	}
	return op, nil
}
