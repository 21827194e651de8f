package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		id, err := send(url, privateKey, to, amount)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println("Transaction:", id)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the amount.")
	sendCmd.Flags().StringVarP(&amount, "amount", "v", "", "Amount to send, up to 8 decimal places.")
}

// send builds, signs and submits a transaction, returning its id.
func send(url string, privateKey *ecdsa.PrivateKey, to string, amount string) (string, error) {
	recipient, err := database.ToAccountID(to)
	if err != nil {
		return "", err
	}

	value, err := database.ParseAmount(amount)
	if err != nil {
		return "", err
	}

	tx, err := database.NewTx(database.PublicKeyToAccountID(&privateKey.PublicKey), recipient, value)
	if err != nil {
		return "", err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		return "", err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	return signedTx.ID(), nil
}
