package state

import (
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/peer"
)

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. The sender is
// remembered as a peer even when the block is rejected.
func (s *State) ProcessProposedBlock(from string, block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: from[%s]: prevBlk[%s]: blk[%d]: numTrans[%d]", from, block.Header.PreviousHash, block.Header.Index, len(block.Values()))
	defer s.evHandler("state: ProcessProposedBlock: completed: blk[%d]", block.Header.Index)

	if from != "" && !peer.New(from).Match(s.host) {
		if s.knownPeers.Add(peer.New(from)) {
			s.evHandler("state: ProcessProposedBlock: adding peer-node %s", from)
		}
	}

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block); err != nil {
		return err
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The block it is working on no longer extends the chain.
	s.Worker.SignalCancelMining()

	// Pass the block along to everyone but the node it came from.
	s.Worker.SignalShareBlock(block, from)

	return nil
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to the chain.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate block")

	if err := block.ValidateBlock(s.db.LatestBlock(), s.difficulty, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: append to chain")

	if err := s.db.Append(block); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: remove from mempool")

	for _, tx := range block.Values() {
		if s.mempool.Remove(tx) {
			s.evHandler("state: validateUpdateDatabase: tx[%s] removed", tx)
		}
	}

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}
