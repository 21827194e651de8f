// This program is a wallet for creating keys and submitting transactions
// to a ledger node.
package main

import "github.com/arthachain/ledger/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
