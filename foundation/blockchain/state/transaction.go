package state

import (
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

// SubmitTransaction adds a new transaction to the end of the mempool. The
// transaction is picked up by the next mining attempt.
func (s *State) SubmitTransaction(tx database.Transaction) int {
	n := s.mempool.Add(tx)

	s.evHandler("state: SubmitTransaction: tx[%s]: mempool[%d]", tx, n)

	return n
}
