// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sync"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

// Mempool represents the ordered set of transactions waiting to be mined.
// The order of the transactions is significant since it is the order they
// are committed to in the merkle root of the next block.
type Mempool struct {
	mu   sync.RWMutex
	pool []database.Transaction
}

// New constructs a new empty mempool.
func New() *Mempool {
	return &Mempool{}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add appends the transaction to the end of the pool and returns the new
// size of the pool.
func (mp *Mempool) Add(tx database.Transaction) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = append(mp.pool, tx)

	return len(mp.pool)
}

// Insert places the transaction at the specified position. Positions past
// the end of the pool append the transaction.
func (mp *Mempool) Insert(pos int, tx database.Transaction) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if pos < 0 {
		pos = 0
	}
	if pos >= len(mp.pool) {
		mp.pool = append(mp.pool, tx)
		return len(mp.pool)
	}

	mp.pool = append(mp.pool, database.Transaction{})
	copy(mp.pool[pos+1:], mp.pool[pos:])
	mp.pool[pos] = tx

	return len(mp.pool)
}

// Remove deletes the first transaction structurally equal to the specified
// transaction. It reports if a transaction was removed.
func (mp *Mempool) Remove(tx database.Transaction) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for i, ptx := range mp.pool {
		if ptx.Equals(tx) {
			mp.pool = append(mp.pool[:i], mp.pool[i+1:]...)
			return true
		}
	}

	return false
}

// Drain removes and returns every transaction in pool order.
func (mp *Mempool) Drain() []database.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	trans := mp.pool
	mp.pool = nil

	return trans
}

// Take removes and returns the first n transactions in pool order.
// Transactions added after those n remain in the pool.
func (mp *Mempool) Take(n int) []database.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	n = min(max(n, 0), len(mp.pool))

	trans := make([]database.Transaction, n)
	copy(trans, mp.pool[:n])

	rest := make([]database.Transaction, len(mp.pool)-n)
	copy(rest, mp.pool[n:])
	mp.pool = rest

	return trans
}

// Copy returns a snapshot of the pool in pool order.
func (mp *Mempool) Copy() []database.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	trans := make([]database.Transaction, len(mp.pool))
	copy(trans, mp.pool)

	return trans
}
