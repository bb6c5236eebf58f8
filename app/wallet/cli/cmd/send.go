package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pocketcoin/node/foundation/blockchain/database"
)

var (
	to     string
	amount uint64
	fee    uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and send a transaction",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send to.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to send in base units.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "c", 0, "Fee paid to the miner in base units.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey := loadPrivateKey()

	toID, err := database.ToAccountID(to)
	if err != nil {
		fatal("to: %s", err)
	}

	tx, err := database.NewTx(database.PrivateKeyToAccountID(privateKey), toID, amount, fee)
	if err != nil {
		fatal("building transaction: %s", err)
	}

	tx, err = tx.Sign(privateKey)
	if err != nil {
		fatal("signing transaction: %s", err)
	}

	data, err := json.Marshal(database.NewTxRecord(tx))
	if err != nil {
		fatal("encoding transaction: %s", err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", strings.TrimSuffix(url, "/")), "application/json", bytes.NewReader(data))
	if err != nil {
		fatal("submitting transaction: %s", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatal("node refused transaction: %s: %s", resp.Status, body)
	}

	color.Green("transaction %s submitted", tx.Hash())
}
