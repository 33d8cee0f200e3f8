package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the blocks of the chain.",
	RunE:  chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func chainRun(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(fmt.Sprintf("%s/v1/blocks/list", url))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s", resp.Status)
	}

	var blocks []database.BlockData
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, block := range blocks {
		var proof string
		if block.Header.Proof != nil {
			proof = *block.Header.Proof
		}

		fmt.Fprintf(out, "block %d: proof[%s] prev[%s] txs[%d]\n", block.Header.Index, proof, block.Header.PreviousHash, block.Body.TransCount)
		for _, tx := range block.Body.Trans {
			fmt.Fprintf(out, "  %s\n", tx)
		}
	}

	return nil
}
