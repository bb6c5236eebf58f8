package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

var showPublicKey bool

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the account address for the specific wallet",
	Run:   addressRun,
}

func init() {
	rootCmd.AddCommand(addressCmd)
	addressCmd.Flags().BoolVarP(&showPublicKey, "public-key", "k", false, "Also print the public key.")
}

func addressRun(cmd *cobra.Command, args []string) {
	privateKey := loadPrivateKey()

	fmt.Println(database.PrivateKeyToAccountID(privateKey))
	if showPublicKey {
		fmt.Println(signature.PublicKeyHex(privateKey))
	}
}
