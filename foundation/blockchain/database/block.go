package database

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/digest"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/merkle"
)

// Version is the block format version written into every header.
const Version = "0.0.1"

// Set of errors returned when validating a block proposed by a peer.
var (
	ErrPreviousHashMismatch          = errors.New("block does not extend the current chain")
	ErrProofMissingOrWrongDifficulty = errors.New("proof of work is missing or does not meet the difficulty")
	ErrProofHashMismatch             = errors.New("proof of work does not match the block header")
)

// ErrNoPreviousHash is returned when a header is requested without a previous
// block and without an explicit previous hash.
var ErrNoPreviousHash = errors.New("previous hash must be provided when there is no previous block")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Version      string  `json:"version"`       // Format version of the block.
	Index        uint64  `json:"index"`         // Position of the block in the chain, genesis is 1.
	PreviousHash string  `json:"previous_hash"` // Commitment of the parent header.
	MerkleRoot   string  `json:"merkle_root"`   // Merkle root of the block transactions.
	TimeStamp    float64 `json:"timestamp"`     // Seconds since epoch when the header was created.
	Difficulty   string  `json:"difficulty"`    // Suffix a valid proof must end with.
	Nonce        uint64  `json:"nonce"`         // Value identified to solve the proof of work.
	Proof        string  `json:"proof"`         // Header commitment for Nonce, empty until mined.
}

// HeaderCommitment returns the commitment of the header for the specified
// nonce. The fields are concatenated in a fixed order without separators.
// The proof is not part of the commitment since it is derived from it.
func HeaderCommitment(h BlockHeader, nonce uint64) string {
	var b strings.Builder

	b.WriteString(h.Version)
	b.WriteString(strconv.FormatUint(h.Index, 10))
	b.WriteString(h.PreviousHash)
	b.WriteString(h.MerkleRoot)
	b.WriteString(formatTimeStamp(h.TimeStamp))
	b.WriteString(h.Difficulty)
	b.WriteString(strconv.FormatUint(nonce, 10))

	return digest.Commit(b.String())
}

// IsProofSolved reports if the proof is present and ends with the difficulty.
func IsProofSolved(difficulty string, proof string) bool {
	return proof != "" && strings.HasSuffix(proof, difficulty)
}

// formatTimeStamp renders the timestamp using the shortest representation
// that round trips, always carrying a fractional part. Magnitudes below 1e-4
// or from 1e16 up switch to exponent form, as other nodes render floats.
func formatTimeStamp(ts float64) string {
	if abs := math.Abs(ts); ts != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(ts, 'e', -1, 64)
	}

	s := strconv.FormatFloat(ts, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// =============================================================================

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[Transaction]
}

// HeaderArgs represents the set of arguments required to draft a new block.
type HeaderArgs struct {
	PrevBlock     Block         // Zero value when the chain is empty.
	PrevBlockHash string        // Explicit previous hash, only the genesis block provides one.
	Difficulty    string        // Suffix the proof of work must end with.
	TimeStamp     float64       // Optional, defaults to the current time.
	Trans         []Transaction // Snapshot of the mempool in mempool order.
}

// NewBlock drafts a new block on top of the previous block. The header has
// a zero nonce and no proof. The previous hash defaults to the commitment
// of the previous block when not explicitly provided.
func NewBlock(args HeaderArgs) (Block, error) {
	prevBlockHash := args.PrevBlockHash
	if prevBlockHash == "" {
		if args.PrevBlock.Header.Index == 0 {
			return Block{}, ErrNoPreviousHash
		}
		prevBlockHash = args.PrevBlock.Hash()
	}

	// Construct a merkle tree from the transactions for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(args.Trans)
	if err != nil {
		return Block{}, err
	}

	ts := args.TimeStamp
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	nb := Block{
		Header: BlockHeader{
			Version:      Version,
			Index:        args.PrevBlock.Header.Index + 1,
			PreviousHash: prevBlockHash,
			MerkleRoot:   tree.RootHex(),
			TimeStamp:    ts,
			Difficulty:   args.Difficulty,
			Nonce:        0, // Will be identified by the POW algorithm.
		},
		Trans: tree,
	}

	return nb, nil
}

// Hash returns the commitment of the block header for its own nonce. This
// is the value a child block carries as its previous hash.
func (b Block) Hash() string {
	return HeaderCommitment(b.Header, b.Header.Nonce)
}

// Values returns the transactions of the block in block order.
func (b Block) Values() []Transaction {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// String implements the Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("Block(index=%d, proof=%s)", b.Header.Index, b.Header.Proof)
}

// ValidateBlock takes a block proposed by a peer and validates it can be
// appended on top of the latest block using the local difficulty.
func (b Block) ValidateBlock(latestBlock Block, difficulty string, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: previous hash does match latest block", b.Header.Index)

	if b.Header.PreviousHash != latestBlock.Hash() {
		return fmt.Errorf("%w: got %s, exp %s", ErrPreviousHashMismatch, b.Header.PreviousHash, latestBlock.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: proof meets difficulty[%s]", b.Header.Index, difficulty)

	if !IsProofSolved(difficulty, b.Header.Proof) {
		return fmt.Errorf("%w: proof %q, difficulty %q", ErrProofMissingOrWrongDifficulty, b.Header.Proof, difficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: proof matches header commitment", b.Header.Index)

	if hash := HeaderCommitment(b.Header, b.Header.Nonce); hash != b.Header.Proof {
		return fmt.Errorf("%w: got %s, exp %s", ErrProofHashMismatch, b.Header.Proof, hash)
	}

	return nil
}

// =============================================================================

// BlockHeaderData represents the header as it travels between nodes.
type BlockHeaderData struct {
	Version      string  `json:"version"`
	Index        uint64  `json:"index"`
	PreviousHash string  `json:"previous_hash"`
	MerkleRoot   string  `json:"merkle_root"`
	TimeStamp    float64 `json:"timestamp"`
	Difficulty   string  `json:"difficulty"`
	Nonce        uint64  `json:"nonce"`
	Proof        *string `json:"proof"`
}

// BlockBodyData represents the transactions as they travel between nodes.
type BlockBodyData struct {
	TransCount int           `json:"transactions_count"`
	Trans      []Transaction `json:"transactions"`
}

// BlockData represents what is serialized between nodes.
type BlockData struct {
	Header BlockHeaderData `json:"header"`
	Body   BlockBodyData   `json:"body"`
}

// NewBlockData constructs the value to serialize for the network.
func NewBlockData(block Block) BlockData {
	var proof *string
	if block.Header.Proof != "" {
		p := block.Header.Proof
		proof = &p
	}

	trans := block.Values()
	if trans == nil {
		trans = []Transaction{}
	}

	return BlockData{
		Header: BlockHeaderData{
			Version:      block.Header.Version,
			Index:        block.Header.Index,
			PreviousHash: block.Header.PreviousHash,
			MerkleRoot:   block.Header.MerkleRoot,
			TimeStamp:    block.Header.TimeStamp,
			Difficulty:   block.Header.Difficulty,
			Nonce:        block.Header.Nonce,
			Proof:        proof,
		},
		Body: BlockBodyData{
			TransCount: len(trans),
			Trans:      trans,
		},
	}
}

// ToBlock converts the network representation into a Block. The merkle tree
// is rebuilt from the transactions, the header is taken as provided.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Body.Trans)
	if err != nil {
		return Block{}, err
	}

	var proof string
	if blockData.Header.Proof != nil {
		proof = *blockData.Header.Proof
	}

	nb := Block{
		Header: BlockHeader{
			Version:      blockData.Header.Version,
			Index:        blockData.Header.Index,
			PreviousHash: blockData.Header.PreviousHash,
			MerkleRoot:   blockData.Header.MerkleRoot,
			TimeStamp:    blockData.Header.TimeStamp,
			Difficulty:   blockData.Header.Difficulty,
			Nonce:        blockData.Header.Nonce,
			Proof:        proof,
		},
		Trans: tree,
	}

	return nb, nil
}
