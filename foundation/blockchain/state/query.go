package state

import (
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/merkle"
)

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryChainLength returns the index the next block will have.
func (s *State) QueryChainLength() uint64 {
	return s.db.Length()
}

// QueryChain returns the blocks of the chain ordered from genesis.
func (s *State) QueryChain() []database.Block {
	return s.db.Copy()
}

// QueryBlockByIndex returns the block with the specified index.
func (s *State) QueryBlockByIndex(index uint64) (database.Block, error) {
	return s.db.GetBlock(index)
}

// QueryMerkleProof returns the inclusion proof for the transaction at the
// specified position of the block with the specified index.
func (s *State) QueryMerkleProof(index uint64, position int) (database.Transaction, []string, []int64, string, error) {
	block, err := s.db.GetBlock(index)
	if err != nil {
		return database.Transaction{}, nil, nil, "", err
	}

	proof, order, err := block.Trans.ProofAt(position)
	if err != nil {
		return database.Transaction{}, nil, nil, "", err
	}

	return block.Values()[position], proof, order, block.Header.MerkleRoot, nil
}

// VerifyMerkleProof reports if the transaction is committed to by the root
// through the proof.
func VerifyMerkleProof(tx database.Transaction, proof []string, order []int64, root string) (bool, error) {
	leaf, err := tx.Hash()
	if err != nil {
		return false, err
	}

	return merkle.VerifyProof(leaf, proof, order, root), nil
}
