package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
)

type balance struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	accountID := database.PrivateKeyToAccountID(loadPrivateKey())
	color.Cyan("For Account: %s", accountID)

	resp, err := http.Get(fmt.Sprintf("%s/v1/balances/%s", strings.TrimSuffix(url, "/"), accountID))
	if err != nil {
		fatal("querying node: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatal("node responded %s", resp.Status)
	}

	var bals balances
	if err := json.NewDecoder(resp.Body).Decode(&bals); err != nil {
		fatal("decoding response: %s", err)
	}

	if len(bals.Balances) == 0 {
		color.Yellow("no balance reported")
		return
	}

	units := bals.Balances[0].Balance
	color.Green("%d units (%.8f coins)", units, float64(units)/genesis.UnitsPerCoin)
	color.White("latest block: %s  uncommitted: %d", bals.LatestBlock, bals.Uncommitted)
}
