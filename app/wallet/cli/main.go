package main

import "github.com/pocketcoin/node/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
