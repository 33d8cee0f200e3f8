// Package database handles the lower level support for maintaining the
// blockchain in memory: the block model, the proof of work and the chain of
// sealed blocks.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// Set of errors returned when reading from or writing to the chain.
var (
	ErrEmptyChain       = errors.New("there are no blocks in the chain")
	ErrIndexOutOfRange  = errors.New("block index out of range")
	ErrBlockOutOfOrder  = errors.New("block index is not the next index")
	ErrChainNotLinkable = errors.New("chain blocks are not contiguous")
)

// Database manages the chain of sealed blocks. The blocks live in an arena
// ordered from genesis to the latest block. Each block's parent is the block
// stored right before it, so replacing the arena replaces the whole chain
// without leaving dangling references.
type Database struct {
	mu     sync.RWMutex
	blocks []Block
}

// New constructs an empty chain.
func New() *Database {
	return &Database{}
}

// Append links the block on top of the latest block. The block must carry
// the next index of the chain.
func (db *Database) Append(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if next := db.nextIndex(); block.Header.Index != next {
		return fmt.Errorf("%w: got %d, exp %d", ErrBlockOutOfOrder, block.Header.Index, next)
	}

	db.blocks = append(db.blocks, block)

	return nil
}

// ReplaceWith swaps the entire chain for the specified blocks, ordered from
// genesis to the latest block. The chain is left untouched if the blocks are
// not contiguous.
func (db *Database) ReplaceWith(blocks []Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrChainNotLinkable)
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].Header.Index != blocks[i-1].Header.Index+1 {
			return fmt.Errorf("%w: block %d follows block %d", ErrChainNotLinkable, blocks[i].Header.Index, blocks[i-1].Header.Index)
		}
	}

	arena := make([]Block, len(blocks))
	copy(arena, blocks)

	db.mu.Lock()
	defer db.mu.Unlock()

	db.blocks = arena

	return nil
}

// LatestBlock returns the latest block. The zero value is returned when
// the chain is empty.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.blocks) == 0 {
		return Block{}
	}

	return db.blocks[len(db.blocks)-1]
}

// Length returns the index that will be assigned to the next block.
func (db *Database) Length() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.nextIndex()
}

// GetBlock walks back from the latest block to locate and return the block
// with the specified index.
func (db *Database) GetBlock(index uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}

	latest := db.blocks[len(db.blocks)-1]
	if index == 0 || index > latest.Header.Index {
		return Block{}, fmt.Errorf("%w: wanted %d, latest %d", ErrIndexOutOfRange, index, latest.Header.Index)
	}

	for i := len(db.blocks) - 1; i >= 0; i-- {
		if db.blocks[i].Header.Index == index {
			return db.blocks[i], nil
		}
	}

	return Block{}, fmt.Errorf("%w: wanted %d", ErrIndexOutOfRange, index)
}

// Copy returns the blocks of the chain ordered from genesis to the latest block.
func (db *Database) Copy() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]Block, len(db.blocks))
	copy(blocks, db.blocks)

	return blocks
}

// nextIndex must be called with the lock held.
func (db *Database) nextIndex() uint64 {
	if len(db.blocks) == 0 {
		return 1
	}

	return db.blocks[len(db.blocks)-1].Header.Index + 1
}
