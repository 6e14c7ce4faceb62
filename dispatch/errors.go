// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import "github.com/pkg/errors"

var (
	errNotFound          = errors.New("task not found")
	errRevoked           = errors.New("revoked")
	errNotAssigned       = errors.New("not-assigned")
	errNoBucket          = errors.New("no-chunk")
	errBudgetExhausted   = errors.New("budget-exhausted")
	errInsufficientFunds = errors.New("insufficient-funds")
	errWorkerOffline     = errors.New("worker offline")
	errNotOwner          = errors.New("not the task owner")
)

func IsErrNotFound(err error) bool {
	return err == errNotFound
}

func IsErrRevoked(err error) bool {
	return err == errRevoked
}

func IsErrNotAssigned(err error) bool {
	return err == errNotAssigned
}

func IsErrNoBucket(err error) bool {
	return err == errNoBucket
}

func IsErrBudgetExhausted(err error) bool {
	return err == errBudgetExhausted
}

func IsErrInsufficientFunds(err error) bool {
	return err == errInsufficientFunds
}

func IsErrWorkerOffline(err error) bool {
	return err == errWorkerOffline
}

func IsErrNotOwner(err error) bool {
	return err == errNotOwner
}

// DenyMessage maps a claim-gate error to its wire message, or "" when err
// is not a deny.
func DenyMessage(err error) string {
	switch err {
	case errNoBucket, errNotAssigned, errRevoked, errBudgetExhausted, errInsufficientFunds:
		return err.Error()
	default:
		return ""
	}
}
