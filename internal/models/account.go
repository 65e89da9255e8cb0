package models

import "fmt"

// Account is a selectable corporate account. AccountNumber is its identity.
type Account struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	AccountNumber string `json:"accountNumber"`
}

// Label renders the picker entry for the account.
func (a Account) Label() string {
	return fmt.Sprintf("%s - %s", a.DisplayName, a.AccountNumber)
}

// FindAccount returns the account with the given number from list.
func FindAccount(list []Account, accountNumber string) (Account, bool) {
	for _, acct := range list {
		if acct.AccountNumber == accountNumber {
			return acct, true
		}
	}
	return Account{}, false
}
