package nameservice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthachain/ledger/foundation/blockchain/database"
	"github.com/arthachain/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Lookup(t *testing.T) {
	root := t.TempDir()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}

	if err := crypto.SaveECDSA(filepath.Join(root, "kennedy.ecdsa"), pk); err != nil {
		t.Fatalf("\t%s\tShould be able to save the key: %s", failed, err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0600); err != nil {
		t.Fatalf("\t%s\tShould be able to write a file: %s", failed, err)
	}

	t.Log("Given the need to name accounts from the key files.")
	{
		ns, err := nameservice.New(root)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the accounts: %s", failed, err)
		}

		account := database.PublicKeyToAccountID(&pk.PublicKey)
		if name := ns.Lookup(account); name != "kennedy" {
			t.Fatalf("\t%s\tShould name the account after the key file, got %q.", failed, name)
		}
		t.Logf("\t%s\tShould name the account after the key file.", success)

		unknown := database.AccountID("0x00")
		if name := ns.Lookup(unknown); name != string(unknown) {
			t.Fatalf("\t%s\tShould return the account itself when unnamed.", failed)
		}
		t.Logf("\t%s\tShould return the account itself when unnamed.", success)

		if len(ns.Copy()) != 1 {
			t.Fatalf("\t%s\tShould skip files that are not keys.", failed)
		}
		t.Logf("\t%s\tShould skip files that are not keys.", success)

		empty, err := nameservice.New(filepath.Join(root, "missing"))
		if err != nil || len(empty.Copy()) != 0 {
			t.Fatalf("\t%s\tShould yield an empty service for a missing folder: %v", failed, err)
		}
		t.Logf("\t%s\tShould yield an empty service for a missing folder.", success)
	}
}
