package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	account, err := generate(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(account)
}

// generate writes a new private key file and returns its account. An
// existing key file is never overwritten.
func generate(path string) (database.AccountID, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key file %s already exists", path)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		return "", err
	}

	return database.PublicKeyToAccountID(&privateKey.PublicKey), nil
}
