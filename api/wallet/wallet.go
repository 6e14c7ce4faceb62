// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package wallet exposes the account profile, the sandbox wallet moves and
// the hosted-checkout endpoints.
package wallet

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/api/restutil"
	"github.com/rtask/rtask/checkout"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/rtask"
)

var logger = log.WithContext("pkg", "wallet")

// profileTxLimit bounds the transactions embedded in the profile response.
const profileTxLimit = 25

// maxWebhookBytes caps a checkout webhook payload.
const maxWebhookBytes = 1 << 20

type Wallet struct {
	led      *ledger.Ledger
	provider checkout.Provider
}

func New(led *ledger.Ledger, provider checkout.Provider) *Wallet {
	if provider == nil {
		provider = checkout.Disabled{}
	}
	return &Wallet{
		led:      led,
		provider: provider,
	}
}

type amountBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (wa *Wallet) handleMe(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	user, err := wa.led.Resolve(session)
	if err != nil {
		return err
	}
	txs, err := wa.led.Transactions(session)
	if err != nil {
		return err
	}

	total := len(txs)
	if total > profileTxLimit {
		txs = txs[total-profileTxLimit:]
	}
	// newest first
	recent := make([]*rtask.WalletTransaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		recent = append(recent, txs[i])
	}

	return restutil.WriteJSON(w, restutil.M{
		"user":                    user,
		"walletTransactions":      recent,
		"walletTransactionsTotal": total,
	})
}

func (wa *Wallet) handleDeposit(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var body amountBody
	if err := restutil.ParseJSON(r.Body, &body); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	user, tx, err := wa.led.Deposit(session, body.Amount)
	if err != nil {
		return convertLedgerError(err)
	}
	return restutil.WriteJSON(w, restutil.M{
		"user":        user,
		"transaction": tx,
	})
}

func (wa *Wallet) handleWithdraw(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var body amountBody
	if err := restutil.ParseJSON(r.Body, &body); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	user, tx, err := wa.led.Withdraw(session, body.Amount)
	if err != nil {
		return convertLedgerError(err)
	}
	return restutil.WriteJSON(w, restutil.M{
		"user":        user,
		"transaction": tx,
	})
}

func (wa *Wallet) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var body amountBody
	if err := restutil.ParseJSON(r.Body, &body); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	if !body.Amount.IsPositive() {
		return restutil.BadRequest(errors.New("amount must be positive"))
	}
	if _, err := wa.led.Resolve(session); err != nil {
		return err
	}

	cs, err := wa.provider.CreateSession(session, body.Amount)
	if err != nil {
		if checkout.IsErrDisabled(err) {
			return restutil.HTTPError(err, http.StatusNotImplemented)
		}
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"id":  cs.ID,
		"url": cs.URL,
	})
}

func (wa *Wallet) handleWebhook(w http.ResponseWriter, r *http.Request) error {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}

	ev, err := wa.provider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if checkout.IsErrDisabled(err) {
			return restutil.HTTPError(err, http.StatusNotImplemented)
		}
		return restutil.BadRequest(err)
	}

	if ev.Type == checkout.EventSessionCompleted {
		user, _, err := wa.led.ApplyCheckout(ev.UserSession, ev.Amount, ev.SessionID)
		if err != nil {
			return convertLedgerError(err)
		}
		logger.Info("checkout credited", "session", ev.SessionID, "user", ev.UserSession, "balance", user.WalletBalance)
	}
	return restutil.WriteJSON(w, restutil.M{"received": true})
}

// convertLedgerError maps ledger errors onto HTTP statuses.
func convertLedgerError(err error) error {
	switch {
	case ledger.IsErrSandboxDisabled(err):
		return restutil.Forbidden(err)
	case ledger.IsErrInvalidAmount(err),
		ledger.IsErrDepositTooLarge(err),
		ledger.IsErrInsufficientFunds(err):
		return restutil.BadRequest(err)
	case ledger.IsErrNoAccount(err):
		return restutil.NotFound(err)
	default:
		return err
	}
}

// Mount attaches the profile, wallet and checkout routes. They live under
// sibling prefixes, so unlike most resources this one takes the bare api
// router.
func (wa *Wallet) Mount(root *mux.Router) {
	root.Path("/me").
		Methods(http.MethodGet).
		Name("wallet_me").
		HandlerFunc(restutil.WrapHandlerFunc(wa.handleMe))

	sub := root.PathPrefix("/wallet").Subrouter()
	sub.Path("/deposit").
		Methods(http.MethodPost).
		Name("wallet_deposit").
		HandlerFunc(restutil.WrapHandlerFunc(wa.handleDeposit))
	sub.Path("/withdraw").
		Methods(http.MethodPost).
		Name("wallet_withdraw").
		HandlerFunc(restutil.WrapHandlerFunc(wa.handleWithdraw))

	stripe := root.PathPrefix("/stripe").Subrouter()
	stripe.Path("/create-checkout-session").
		Methods(http.MethodPost).
		Name("wallet_checkout_session").
		HandlerFunc(restutil.WrapHandlerFunc(wa.handleCreateCheckoutSession))
	stripe.Path("/webhook").
		Methods(http.MethodPost).
		Name("wallet_checkout_webhook").
		HandlerFunc(restutil.WrapHandlerFunc(wa.handleWebhook))
}
