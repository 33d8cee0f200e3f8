package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

// ErrChainChanged is returned when a mined block no longer extends the
// latest block because another block was accepted in the meantime.
var ErrChainChanged = errors.New("chain changed while mining")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. A coinbase paying the owner is placed at the
// front of the mempool and the block commits to the mempool as it is at that
// moment. On any failure the coinbase is taken back out of the mempool.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	coinbase := database.NewCoinbase(s.ownerAddress, s.reward)

	s.evHandler("state: MineNewBlock: MINING: insert coinbase: tx[%s]", coinbase)

	block, trans, err := s.draftBlock(coinbase)
	if err != nil {
		s.mempool.Remove(coinbase)
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: txs[%d]", block.Header.Index, len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err = database.POW(ctx, block, s.evHandler)
	if err != nil {
		s.mempool.Remove(coinbase)
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: seal block")

	if err := s.sealBlock(ctx, block, len(trans)); err != nil {
		s.mempool.Remove(coinbase)
		return database.Block{}, err
	}

	return block, nil
}

// draftBlock inserts the coinbase and drafts the block on top of the latest
// block as one step so no other block can be appended in between.
func (s *State) draftBlock(coinbase database.Transaction) (database.Block, []database.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Insert(0, coinbase)
	trans := s.mempool.Copy()

	block, err := database.NewBlock(database.HeaderArgs{
		PrevBlock:  s.db.LatestBlock(),
		Difficulty: s.difficulty,
		Trans:      trans,
	})
	if err != nil {
		return database.Block{}, nil, err
	}

	return block, trans, nil
}

// sealBlock appends the mined block and consumes the transactions it was
// drafted from. The block is discarded if mining was cancelled or the
// latest block changed while the proof was being searched.
func (s *State) sealBlock(ctx context.Context, block database.Block, consumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if latest := s.db.LatestBlock(); latest.Hash() != block.Header.PreviousHash {
		return fmt.Errorf("%w: latest blk[%d]", ErrChainChanged, latest.Header.Index)
	}

	if err := s.db.Append(block); err != nil {
		return err
	}

	// Transactions added while mining stay behind for the next block.
	s.mempool.Take(consumed)

	s.blockEvent(block)

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Values())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}
