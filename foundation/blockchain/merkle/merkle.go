// Package merkle provides an implementation of a merkle tree for committing
// to the ordered set of transactions in a block.
//
// The shape of the tree follows the node wire format: each pair of adjacent
// hex hashes is concatenated as text and committed with digest.Commit. When a
// level has an odd number of nodes, the last node is paired with itself.
package merkle

import (
	"fmt"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/digest"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable interface {
	Hash() (string, error)
}

// Root reduces the ordered set of leaf hashes to a single root hash. An
// empty set of leaves produces an empty root.
func Root(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}

	level := leaves
	for {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i
			}
			next = append(next, digest.Commit(level[i]+level[right]))
		}

		if len(next) == 1 {
			return next[0]
		}
		level = next
	}
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable] struct {
	Root       *Node[T]
	Leafs      []*Node[T]
	MerkleRoot string
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface. A tree with no
// values is valid and has an empty root.
func NewTree[T Hashable](values []T) (*Tree[T], error) {
	var t Tree[T]

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree[T]) Generate(values []T) error {
	t.Root = nil
	t.Leafs = nil
	t.MerkleRoot = ""

	if len(values) == 0 {
		return nil
	}

	leafs := make([]*Node[T], 0, len(values))
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
		})
	}

	root := buildIntermediate(leafs)

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// ProofAt returns the proof for the value stored at the specified leaf position.
func (t *Tree[T]) ProofAt(position int) ([]string, []int64, error) {
	if position < 0 || position >= len(t.Leafs) {
		return nil, nil, fmt.Errorf("leaf position %d out of range, leafs %d", position, len(t.Leafs))
	}

	return t.Leafs[position].path()
}

// Values returns the values stored in the tree in leaf order.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leafs))
	for _, leaf := range t.Leafs {
		values = append(values, leaf.Value)
	}

	return values
}

// RootHex returns the merkle root.
func (t *Tree[T]) RootHex() string {
	return t.MerkleRoot
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree[T]) String() string {
	s := ""

	for _, l := range t.Leafs {
		s += fmt.Sprint(l)
		s += "\n"
	}

	return s
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// VerifyProof recomputes the root from a leaf hash and the proof returned
// by ProofAt and reports if it matches the specified root.
func VerifyProof(leafHash string, proof []string, order []int64, root string) bool {
	if len(proof) != len(order) {
		return false
	}

	hash := leafHash
	for i, p := range proof {
		switch order[i] {
		case 1:
			hash = digest.Commit(hash + p)
		default:
			hash = digest.Commit(p + hash)
		}
	}

	return hash == root
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node[T Hashable] struct {
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   string
	Value  T
	leaf   bool
}

// path walks from this node to the root collecting the sibling hashes.
func (n *Node[T]) path() ([]string, []int64, error) {
	var merkleProof []string
	var order []int64

	node := n
	for parent := node.Parent; parent != nil; parent = parent.Parent {
		if parent.Left == node {
			merkleProof = append(merkleProof, parent.Right.Hash)
			order = append(order, 1) // sibling is on the right, concat second.
		} else {
			merkleProof = append(merkleProof, parent.Left.Hash)
			order = append(order, 0) // sibling is on the left, concat first.
		}
		node = parent
	}

	return merkleProof, order, nil
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %s %v", n.leaf, n.Hash, n.Value)
}

// =============================================================================

// buildIntermediate is a helper function that for a given list of nodes,
// constructs the next level of the tree until the root is reached. A level
// with an odd number of nodes pairs the last node with itself.
func buildIntermediate[T Hashable](nl []*Node[T]) *Node[T] {
	nodes := make([]*Node[T], 0, (len(nl)+1)/2)

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if right == len(nl) {
			right = i
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  digest.Commit(nl[left].Hash + nl[right].Hash),
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n
	}

	if len(nodes) == 1 {
		return nodes[0]
	}

	return buildIntermediate(nodes)
}
