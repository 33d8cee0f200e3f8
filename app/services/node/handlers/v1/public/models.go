package public

import (
	"github.com/ledgerlabs/gossipchain/business/sys/validate"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

// submitTx is what a client sends to add a transaction to the mempool. The
// amount is in coins.
type submitTx struct {
	Sender    string  `json:"sender" validate:"required,ne=Coinbase"`
	Recipient string  `json:"recipient" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

// Validate checks the fields of the transaction.
func (tx submitTx) Validate() error {
	return validate.Check(tx)
}

type tx struct {
	Sender        string  `json:"sender"`
	SenderName    string  `json:"sender_name"`
	Recipient     string  `json:"recipient"`
	RecipientName string  `json:"recipient_name"`
	Amount        uint64  `json:"amount"`
	Coins         float64 `json:"coins"`
}

type merkleProof struct {
	Index       uint64               `json:"index"`
	Position    int                  `json:"position"`
	Transaction database.Transaction `json:"transaction"`
	MerkleRoot  string               `json:"merkle_root"`
	Proof       []string             `json:"proof"`
	Order       []int64              `json:"order"`
	Verified    bool                 `json:"verified"`
}
