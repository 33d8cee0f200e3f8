package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	to    string
	value float64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the coins.")
	sendCmd.Flags().Float64VarP(&value, "value", "v", 0, "Coins to send.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}

func sendRun(cmd *cobra.Command, args []string) error {
	from, err := loadAddress()
	if err != nil {
		return err
	}

	tx := struct {
		Sender    string  `json:"sender"`
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
	}{
		Sender:    from,
		Recipient: to,
		Amount:    value,
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s: %s", resp.Status, body)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(body))

	return nil
}
