// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build cgo

package ledgerdb

import sqlite3 "github.com/mattn/go-sqlite3"

// sqliteDriverVersion reports the version of the linked sqlite library.
func sqliteDriverVersion() string {
	v, _, _ := sqlite3.Version()
	return v
}
