package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/merkle"
	"github.com/spf13/cobra"
)

var (
	blockIndex uint64
	position   int
)

var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Fetch and verify the merkle proof of a mined transaction.",
	RunE:  proofRun,
}

func init() {
	rootCmd.AddCommand(proofCmd)
	proofCmd.Flags().Uint64VarP(&blockIndex, "block", "b", 2, "Index of the block.")
	proofCmd.Flags().IntVarP(&position, "position", "i", 0, "Position of the transaction in the block.")
}

func proofRun(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(fmt.Sprintf("%s/v1/blocks/%d/proof/%d", url, blockIndex, position))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s", resp.Status)
	}

	var mp struct {
		Transaction database.Transaction `json:"transaction"`
		MerkleRoot  string               `json:"merkle_root"`
		Proof       []string             `json:"proof"`
		Order       []int64              `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mp); err != nil {
		return err
	}

	// Verify the proof against the root locally.
	leaf, err := mp.Transaction.Hash()
	if err != nil {
		return err
	}

	verified := merkle.VerifyProof(leaf, mp.Proof, mp.Order, mp.MerkleRoot)
	fmt.Fprintf(cmd.OutOrStdout(), "tx[%s] root[%s] verified[%t]\n", mp.Transaction, mp.MerkleRoot, verified)

	return nil
}
