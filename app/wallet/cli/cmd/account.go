package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print account for the specific wallet",
	RunE:  accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) error {
	address, err := loadAddress()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), address)

	return nil
}

// loadAddress returns the address of the account of the wallet.
func loadAddress() (string, error) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex(), nil
}
