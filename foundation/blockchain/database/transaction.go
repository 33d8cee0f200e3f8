package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/digest"
)

// OneCoin is the number of indivisible units that make up a single coin.
const OneCoin = 100_000_000

// CoinbaseSender is the sender used for the mining reward transaction.
const CoinbaseSender = "Coinbase"

// FloatToCoin converts a fractional coin value into units. The conversion
// truncates toward zero, so values smaller than one unit become zero.
func FloatToCoin(value float64) uint64 {
	if value <= 0 {
		return 0
	}
	return uint64(value * OneCoin)
}

// =============================================================================

// Transaction is the transfer of value between two parties. Transactions
// carry no signature or nonce, two transactions with the same fields are the
// same transaction.
type Transaction struct {
	Sender    string `json:"sender" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
	Amount    uint64 `json:"amount"`
}

// NewTransaction constructs a new transaction.
func NewTransaction(sender string, recipient string, amount uint64) Transaction {
	return Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
	}
}

// NewCoinbase constructs the transaction that credits the miner of a block.
func NewCoinbase(owner string, reward uint64) Transaction {
	return NewTransaction(CoinbaseSender, owner, reward)
}

// Hash implements the merkle Hashable interface. The leaf hash of a
// transaction is the commitment of its canonical encoding.
func (tx Transaction) Hash() (string, error) {
	return digest.Commit(tx.Canonical()), nil
}

// Equals reports if both transactions carry the same fields.
func (tx Transaction) Equals(otherTx Transaction) bool {
	return tx == otherTx
}

// Canonical returns the encoding of the transaction used for its commitment.
// Field order, separators and escaping are fixed so every node produces the
// same bytes: {"sender": "a", "recipient": "b", "amount": 1}.
func (tx Transaction) Canonical() string {
	var b strings.Builder

	b.WriteString(`{"sender": `)
	writeQuoted(&b, tx.Sender)
	b.WriteString(`, "recipient": `)
	writeQuoted(&b, tx.Recipient)
	b.WriteString(`, "amount": `)
	b.WriteString(strconv.FormatUint(tx.Amount, 10))
	b.WriteString("}")

	return b.String()
}

// String implements the Stringer interface for logging.
func (tx Transaction) String() string {
	return fmt.Sprintf("%s:%s:%d", tx.Sender, tx.Recipient, tx.Amount)
}

// writeQuoted writes the value as a JSON string where everything outside of
// printable ASCII is escaped as \uXXXX.
func writeQuoted(b *strings.Builder, s string) {
	const hex = "0123456789abcdef"

	writeU := func(r rune) {
		b.WriteString(`\u`)
		b.WriteByte(hex[(r>>12)&0xf])
		b.WriteByte(hex[(r>>8)&0xf])
		b.WriteByte(hex[(r>>4)&0xf])
		b.WriteByte(hex[r&0xf])
	}

	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r >= ' ' && r <= '~':
			b.WriteRune(r)
		case r > 0xffff:
			r -= 0x10000
			writeU(0xd800 | (r>>10)&0x3ff)
			writeU(0xdc00 | r&0x3ff)
		default:
			writeU(r)
		}
	}
	b.WriteByte('"')
}
