package main

import "github.com/ledgerlabs/gossipchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
