package database

import (
	"crypto/ecdsa"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

// AccountID represents an account id that is used to sign transactions and is
// associated with transactions on the blockchain. It is the PC_ prefixed
// address derived from the account's public key.
type AccountID string

// ToAccountID converts a string to an account and validates the string is
// formatted correctly.
func ToAccountID(address string) (AccountID, error) {
	a := AccountID(address)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the hex encoded public key to an account id.
func PublicKeyToAccountID(publicKeyHex string) AccountID {
	return AccountID(signature.AddressFromPublicKey(publicKeyHex))
}

// PrivateKeyToAccountID converts the private key to an account id.
func PrivateKeyToAccountID(privateKey *ecdsa.PrivateKey) AccountID {
	return AccountID(signature.Address(privateKey))
}

// IsAccountID verifies whether the underlying data represents a valid
// account address.
func (a AccountID) IsAccountID() bool {
	return signature.IsAddress(string(a))
}

// =============================================================================

// Balance is an account and its confirmed balance.
type Balance struct {
	AccountID AccountID `json:"account"`
	Balance   int64     `json:"balance"`
}

// =============================================================================

// ConfirmedBalance returns the balance of the account from the snapshot and
// every retained block.
func (l *Ledger) ConfirmedBalance(accountID AccountID) int64 {
	balance := l.snapshot.Balances[accountID]
	for _, b := range l.chain {
		for _, tx := range b.Trans {
			balance += effect(tx, accountID)
		}
	}
	return balance
}

// Balances returns the confirmed balance of every known account sorted by
// account id. Accounts with a zero balance are left out.
func (l *Ledger) Balances() []Balance {
	balances := maps.Clone(l.snapshot.Balances)
	if balances == nil {
		balances = make(map[AccountID]int64)
	}

	for _, b := range l.chain {
		for _, tx := range b.Trans {
			if tx.Type != TxCoinbase {
				balances[tx.FromID] -= tx.Spend()
			}
			balances[tx.ToID] += int64(tx.Amount)
		}
	}

	list := make([]Balance, 0, len(balances))
	for id, bal := range balances {
		if bal != 0 {
			list = append(list, Balance{AccountID: id, Balance: bal})
		}
	}

	slices.SortFunc(list, func(a, b Balance) int {
		return strings.Compare(string(a.AccountID), string(b.AccountID))
	})

	return list
}

// LatestTransactions returns up to n retained transactions that involve the
// account, newest first.
func (l *Ledger) LatestTransactions(accountID AccountID, n int) []Tx {
	var txs []Tx
	for i := len(l.chain) - 1; i >= 0; i-- {
		trans := l.chain[i].Trans
		for j := len(trans) - 1; j >= 0; j-- {
			if len(txs) == n {
				return txs
			}

			tx := trans[j]
			if tx.ToID == accountID || (tx.Type != TxCoinbase && tx.FromID == accountID) {
				txs = append(txs, tx)
			}
		}
	}
	return txs
}
