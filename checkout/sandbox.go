// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pborman/uuid"
	"github.com/shopspring/decimal"
)

// Sandbox simulates a hosted checkout for dev runs. Sessions resolve to a
// local URL and webhooks carry a hex HMAC-SHA256 of the payload under a
// shared secret.
type Sandbox struct {
	secret  []byte
	baseURL string
}

// NewSandbox creates a sandbox provider. baseURL is where the fake payment
// page lives, usually the dev server itself.
func NewSandbox(secret, baseURL string) *Sandbox {
	return &Sandbox{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CreateSession implements Provider.
func (s *Sandbox) CreateSession(userSession string, amount decimal.Decimal) (*Session, error) {
	if userSession == "" || !amount.IsPositive() {
		return nil, errBadEvent
	}
	id := "cs_sandbox_" + strings.ReplaceAll(uuid.New(), "-", "")
	return &Session{
		ID:  id,
		URL: s.baseURL + "/sandbox/checkout/" + id,
	}, nil
}

// VerifyWebhook implements Provider. The signature must be the hex
// HMAC-SHA256 of the raw payload.
func (s *Sandbox) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return nil, errBadSignature
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		return nil, errBadSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errBadEvent
	}
	if ev.Type == EventSessionCompleted {
		if ev.UserSession == "" || !ev.Amount.IsPositive() {
			return nil, errBadEvent
		}
	}
	return &ev, nil
}

// Sign returns the hex webhook signature of payload. Exposed so the dev
// payment page and tests can produce valid callbacks.
func (s *Sandbox) Sign(payload []byte) string {
	return hex.EncodeToString(s.sign(payload))
}

func (s *Sandbox) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
