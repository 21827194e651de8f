package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/arthachain/ledger/foundation/blockchain/database"
)

// Balances replays the chain and prints the balance of every account, or
// of the single account when one is named.
func Balances(w io.Writer, chain []database.Block, account string) error {
	if len(chain) == 0 {
		return database.ErrNoSnapshot
	}

	replay, err := database.ReplayChain(chain)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "LatestBlock: %s  Height: %d\n\n", chain[len(chain)-1].Hash(), chain[len(chain)-1].Index)

	if account != "" {
		id, err := database.ToAccountID(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Account: %s  Balance: %s\n", id, database.FormatAmount(replay.Balance(id)))
		return nil
	}

	balances := replay.Balances()

	accounts := make([]database.AccountID, 0, len(balances))
	for id := range balances {
		if id == database.CoinbaseID {
			continue
		}
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	for _, id := range accounts {
		fmt.Fprintf(w, "Account: %s  Balance: %s\n", id, database.FormatAmount(balances[id]))
	}

	return nil
}
