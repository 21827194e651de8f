package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
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
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(&privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	bal, err := queryBalance(url, accountID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(bal.Balance)
}

// queryBalance asks the node for the pending aware balance of the account.
func queryBalance(url string, accountID database.AccountID) (balance, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/balance/%s", url, accountID))
	if err != nil {
		return balance{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return balance{}, decodeError(resp)
	}

	var bal balance
	if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
		return balance{}, err
	}

	return bal, nil
}

// decodeError turns an error document from the node into an error.
func decodeError(resp *http.Response) error {
	var er struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("node responded %s", resp.Status)
	}

	return fmt.Errorf("node responded %s: %s", resp.Status, er.Error)
}
