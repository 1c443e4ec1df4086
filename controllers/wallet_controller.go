package controllers

import (
	"context"

	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/utils"
)

func (a *App) Wallet(username string) utils.H {
	amount, txns, err := a.Users.Wallet(username)
	if err != nil {
		return anyCodes.respond("wallet", err)
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	return utils.Success(utils.H{"amount": amount, "transactions": txns})
}

// WalletBtc converts the balance with the external rate. A failed fetch falls back to 1.
func (a *App) WalletBtc(ctx context.Context, username string) utils.H {
	amount, _, err := a.Users.Wallet(username)
	if err != nil {
		return anyCodes.respond("walletBtc", err)
	}
	rate := 1.0
	if a.Rates != nil {
		if r, err := a.Rates.Rate(ctx); err != nil {
			utils.Sugar.Warnf("exchange rate unavailable, using 1:1 user=%s err=%v", username, err)
		} else {
			rate = r
		}
	}
	return utils.Success(utils.H{"amount": amount, "rate": rate, "btc": amount * rate})
}
