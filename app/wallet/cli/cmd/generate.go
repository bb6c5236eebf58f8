package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

var overwrite bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVarP(&overwrite, "force", "f", false, "Replace an existing key file.")
}

func generateRun(cmd *cobra.Command, args []string) {
	path := getPrivateKeyPath()

	if _, err := os.Stat(path); !overwrite && !errors.Is(err, fs.ErrNotExist) {
		fatal("key file %s already exists, use --force to replace it", path)
	}

	privateKey, err := signature.GenerateKey()
	if err != nil {
		fatal("generating key: %s", err)
	}

	if err := os.MkdirAll(accountPath, 0o700); err != nil {
		fatal("creating %s: %s", accountPath, err)
	}

	if err := signature.SaveKey(path, privateKey); err != nil {
		fatal("saving key: %s", err)
	}

	color.Green("key saved to %s", path)
	color.White("account: %s", database.PrivateKeyToAccountID(privateKey))
}
