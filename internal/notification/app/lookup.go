package app

import (
	"context"
	"fmt"

	"github.com/IvanTran0101/ibanking-tuition/pkg/accountclient"
)

// AccountLookup adapts the account-service client to the EmailLookup the
// consumer needs.
type AccountLookup struct {
	client *accountclient.Client
}

func NewAccountLookup(client *accountclient.Client) *AccountLookup {
	return &AccountLookup{client: client}
}

func (l *AccountLookup) FindEmail(ctx context.Context, userID, correlationID string) (string, error) {
	account, err := l.client.FindAccount(ctx, userID, correlationID)
	if err != nil {
		return "", err
	}
	if !account.OK || account.Email == "" {
		return "", fmt.Errorf("no account record for user %s", userID)
	}
	return account.Email, nil
}
