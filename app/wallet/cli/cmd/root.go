// Package cmd contains the wallet app.
package cmd

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pocketcoin/node/foundation/blockchain/signature"
	"github.com/pocketcoin/node/foundation/nameservice"
)

var (
	accountName string
	accountPath string
	url         string
)

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Simple wallet for the pocketcoin network",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private"+nameservice.KeyExtension, "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	name := accountName
	if !strings.HasSuffix(name, nameservice.KeyExtension) {
		name += nameservice.KeyExtension
	}

	return filepath.Join(accountPath, name)
}

func loadPrivateKey() *ecdsa.PrivateKey {
	privateKey, err := signature.LoadKey(getPrivateKeyPath())
	if err != nil {
		fatal("unable to load key %s: %s", getPrivateKeyPath(), err)
	}

	return privateKey
}

func fatal(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}
