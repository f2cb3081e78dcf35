package ethsender

import (
	"github.com/ethpandaops/zkoperator/optypes"
)

// TxQueue orders aggregated operations for sending. Execute goes before publish and publish before commit,
// but an operation only becomes eligible once the operations it depends on were handed to the base chain.
type TxQueue struct {
	maxInFlight int
	inFlight    int

	commitOps  []*optypes.QueuedOperation
	publishOps []*optypes.QueuedOperation
	executeOps []*optypes.QueuedOperation

	// highest block handed to the base chain by a commit / publish proof operation
	sentCommitBlock uint64
	sentVerifyBlock uint64

	lastQueuedID int64
}

func NewTxQueue(maxInFlight int, stats *optypes.ETHStats) *TxQueue {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	queue := &TxQueue{
		maxInFlight: maxInFlight,
	}
	if stats != nil {
		queue.sentCommitBlock = stats.LastCommittedBlock
		queue.sentVerifyBlock = stats.LastVerifiedBlock
	}
	return queue
}

// Add appends an operation to the queue of its type. Operations at or below the last queued id are ignored.
func (q *TxQueue) Add(op *optypes.QueuedOperation) {
	if op.ID <= q.lastQueuedID {
		return
	}
	q.lastQueuedID = op.ID

	switch op.Op.ActionType {
	case optypes.ActionCommitBlocks:
		q.commitOps = append(q.commitOps, op)
	case optypes.ActionPublishProofBlocksOnchain:
		q.publishOps = append(q.publishOps, op)
	case optypes.ActionExecuteBlocks:
		q.executeOps = append(q.executeOps, op)
	}
}

func (q *TxQueue) LastQueuedID() int64 {
	return q.lastQueuedID
}

func (q *TxQueue) Len() int {
	return len(q.commitOps) + len(q.publishOps) + len(q.executeOps)
}

func (q *TxQueue) InFlight() int {
	return q.inFlight
}

// SetInFlight sets the number of operations already sent but not yet confirmed.
func (q *TxQueue) SetInFlight(count int) {
	q.inFlight = count
}

// Peek returns the next operation to send, or nil if nothing is eligible or the in-flight limit is reached.
func (q *TxQueue) Peek() *optypes.QueuedOperation {
	if q.inFlight >= q.maxInFlight {
		return nil
	}

	if len(q.executeOps) > 0 {
		if _, last := q.executeOps[0].Op.BlockRange(); last <= q.sentVerifyBlock {
			return q.executeOps[0]
		}
	}
	if len(q.publishOps) > 0 {
		if _, last := q.publishOps[0].Op.BlockRange(); last <= q.sentCommitBlock {
			return q.publishOps[0]
		}
	}
	if len(q.commitOps) > 0 {
		return q.commitOps[0]
	}
	return nil
}

// Pop removes op, which must be the last result of Peek, and counts it as in flight.
func (q *TxQueue) Pop(op *optypes.QueuedOperation) {
	_, last := op.Op.BlockRange()
	switch op.Op.ActionType {
	case optypes.ActionCommitBlocks:
		q.commitOps = q.commitOps[1:]
		q.sentCommitBlock = max(q.sentCommitBlock, last)
	case optypes.ActionPublishProofBlocksOnchain:
		q.publishOps = q.publishOps[1:]
		q.sentVerifyBlock = max(q.sentVerifyBlock, last)
	case optypes.ActionExecuteBlocks:
		q.executeOps = q.executeOps[1:]
	}
	q.inFlight++
}

// ReportCommitment frees the in-flight slot of a confirmed operation.
func (q *TxQueue) ReportCommitment() {
	if q.inFlight > 0 {
		q.inFlight--
	}
}
