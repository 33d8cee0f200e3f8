// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date         time.Time `json:"date"`          // Timestamp written into the genesis header.
	PreviousHash string    `json:"previous_hash"` // Operator supplied previous hash of the genesis block.
	Proof        string    `json:"proof"`         // Operator supplied proof of the genesis block.
	Difficulty   string    `json:"difficulty"`    // Suffix every proof of work must end with.
	MiningReward float64   `json:"mining_reward"` // Coins paid to the miner of a block.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if genesis.PreviousHash == "" {
		return Genesis{}, fmt.Errorf("genesis file %s: previous hash is required", path)
	}

	return genesis, nil
}

// Block constructs the genesis block. The header is taken as configured
// and is never mined.
func (g Genesis) Block() (database.Block, error) {
	block, err := database.NewBlock(database.HeaderArgs{
		PrevBlockHash: g.PreviousHash,
		Difficulty:    g.Difficulty,
		TimeStamp:     float64(g.Date.UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return database.Block{}, err
	}

	block.Header.Proof = g.Proof

	return block, nil
}

// Reward returns the mining reward in minor units.
func (g Genesis) Reward() uint64 {
	return database.FloatToCoin(g.MiningReward)
}
