package database

import (
	"context"
	"runtime"
)

// yieldInterval is how many attempts run between explicit yields to the
// scheduler. Cancellation is still checked on every attempt.
const yieldInterval = 1 << 10

// POW performs the work of mining to find the nonce that solves the proof
// of work for the drafted block. The returned block is sealed with the nonce
// and proof. The search can be cancelled through the context.
func POW(ctx context.Context, block Block, evHandler func(v string, args ...any)) (Block, error) {
	evHandler("database: POW: MINING: started: blk[%d]", block.Header.Index)
	defer evHandler("database: POW: MINING: completed: blk[%d]", block.Header.Index)

	// Log the transactions that are a part of this potential block.
	for _, tx := range block.Values() {
		evHandler("database: POW: MINING: tx[%s]", tx)
	}

	nonce, proof, err := Search(ctx, block.Header, block.Header.Difficulty, evHandler)
	if err != nil {
		return Block{}, err
	}

	block.Header.Nonce = nonce
	block.Header.Proof = proof

	return block, nil
}

// Search looks for the smallest nonce starting at zero whose header
// commitment ends with the difficulty. The search is unbounded and only
// stops when a solution is found or the context is cancelled. All progress
// is discarded on cancellation.
func Search(ctx context.Context, header BlockHeader, difficulty string, evHandler func(v string, args ...any)) (uint64, string, error) {
	done := ctx.Done()

	var nonce uint64
	for attempts := uint64(1); ; attempts++ {
		select {
		case <-done:
			evHandler("database: Search: MINING: CANCELLED: attempts[%d]", attempts)
			return 0, "", ctx.Err()
		default:
		}

		hash := HeaderCommitment(header, nonce)
		if IsProofSolved(difficulty, hash) {
			evHandler("database: Search: MINING: SOLVED: nonce[%d]: proof[%s]: attempts[%d]", nonce, hash, attempts)
			return nonce, hash, nil
		}

		if attempts%1_000_000 == 0 {
			evHandler("database: Search: MINING: attempts[%d]", attempts)
		}

		if attempts%yieldInterval == 0 {
			runtime.Gosched()
		}

		nonce++
	}
}
