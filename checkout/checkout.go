// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package checkout is the seam between the wallet and an external hosted
// payment page. The engine never talks to a payment network itself; a
// Provider hands out redirect sessions and verifies the async callbacks
// that complete them.
package checkout

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// EventSessionCompleted marks a checkout that collected its money.
const EventSessionCompleted = "checkout.session.completed"

var (
	errDisabled     = errors.New("checkout disabled")
	errBadSignature = errors.New("bad webhook signature")
	errBadEvent     = errors.New("bad webhook event")
)

// IsErrDisabled reports whether err means no payment backend is configured.
func IsErrDisabled(err error) bool {
	return err == errDisabled
}

// IsErrBadSignature reports whether err is a webhook signature mismatch.
func IsErrBadSignature(err error) bool {
	return err == errBadSignature
}

// Session is a hosted checkout the customer gets redirected to.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Event is a verified provider callback.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId"`
	UserSession string          `json:"userSession"`
	Amount      decimal.Decimal `json:"amount"`
}

// Provider creates hosted checkout sessions and authenticates the webhooks
// that settle them.
type Provider interface {
	CreateSession(userSession string, amount decimal.Decimal) (*Session, error)
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

// Disabled refuses everything. It stands in when no provider is configured.
type Disabled struct{}

// CreateSession implements Provider.
func (Disabled) CreateSession(string, decimal.Decimal) (*Session, error) {
	return nil, errDisabled
}

// VerifyWebhook implements Provider.
func (Disabled) VerifyWebhook([]byte, string) (*Event, error) {
	return nil, errDisabled
}
