// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import "github.com/pkg/errors"

var (
	errSandboxDisabled   = errors.New("sandbox mode disabled")
	errInvalidAmount     = errors.New("invalid amount")
	errDepositTooLarge   = errors.New("deposit too large")
	errInsufficientFunds = errors.New("insufficient funds")
	errNoAccount         = errors.New("account not found")
)

func IsErrSandboxDisabled(err error) bool {
	return err == errSandboxDisabled
}

func IsErrInvalidAmount(err error) bool {
	return err == errInvalidAmount
}

func IsErrDepositTooLarge(err error) bool {
	return err == errDepositTooLarge
}

func IsErrInsufficientFunds(err error) bool {
	return err == errInsufficientFunds
}

func IsErrNoAccount(err error) bool {
	return err == errNoAccount
}
