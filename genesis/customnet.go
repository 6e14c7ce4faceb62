// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rtask/rtask/rtask"
)

// CustomGenesis is a user-provided allocation file.
type CustomGenesis struct {
	Name     string `yaml:"name"`
	Accounts []struct {
		SessionID string   `yaml:"sessionId"`
		Balance   string   `yaml:"balance"`
		Roles     []string `yaml:"roles"`
	} `yaml:"accounts"`
}

// NewCustomNet validates a custom allocation and builds its genesis.
func NewCustomNet(gen *CustomGenesis) (*Genesis, error) {
	if gen.Name == "" {
		return nil, errors.New("name must be set")
	}
	if len(gen.Accounts) == 0 {
		return nil, errors.New("at least one account must be set")
	}

	seen := make(map[string]bool, len(gen.Accounts))
	accounts := make([]Account, 0, len(gen.Accounts))
	for _, a := range gen.Accounts {
		if a.SessionID == "" {
			return nil, errors.New("account sessionId must be set")
		}
		if seen[a.SessionID] {
			return nil, errors.Errorf("%s: duplicate sessionId", a.SessionID)
		}
		seen[a.SessionID] = true

		if a.Balance == "" {
			return nil, errors.Errorf("%s: balance must be set", a.SessionID)
		}
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return nil, errors.Errorf("%s: invalid balance %q", a.SessionID, a.Balance)
		}
		if balance.IsNegative() {
			return nil, errors.Errorf("%s: balance must not be negative", a.SessionID)
		}

		roles := a.Roles
		if len(roles) == 0 {
			roles = []string{rtask.RoleCustomer}
		}
		for _, r := range roles {
			if !validRole(r) {
				return nil, errors.Errorf("%s: unknown role %q", a.SessionID, r)
			}
		}
		accounts = append(accounts, Account{
			SessionID: a.SessionID,
			Balance:   rtask.Round2(balance),
			Roles:     roles,
		})
	}
	return &Genesis{name: gen.Name, accounts: accounts}, nil
}

// LoadCustomNet reads and validates a YAML allocation file.
func LoadCustomNet(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}
	var gen CustomGenesis
	if err := yaml.Unmarshal(data, &gen); err != nil {
		return nil, errors.Wrap(err, "parse genesis file")
	}
	return NewCustomNet(&gen)
}
