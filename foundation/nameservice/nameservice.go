// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the node accounts.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[string]string
	names    map[string]string
}

// New constructs a Name Service with accounts from the zblock/accounts folder.
// Every file with the .ecdsa extension holds a hex encoded private key and
// the file name is the name of the account.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[string]string),
		names:    make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		ns.accounts[address] = name
		ns.names[name] = address

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account address. The address
// itself is returned when the account has no name.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.accounts[address]
	if !exists {
		return address
	}
	return name
}

// Address returns the account address for the specified name.
func (ns *NameService) Address(name string) (string, bool) {
	address, exists := ns.names[name]
	return address, exists
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.accounts))
	for account, name := range ns.accounts {
		cpy[account] = name
	}
	return cpy
}
