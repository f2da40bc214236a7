package main

import (
	"os"

	"github.com/josh-kwaku/brokerage-ledger/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
