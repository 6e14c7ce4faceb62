// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

//go:build !cgo

package ledgerdb

// sqliteDriverVersion reports the version of the linked sqlite library.
// Without cgo the go-sqlite3 driver is a non-functional stub and exposes
// no version information.
func sqliteDriverVersion() string {
	return ""
}
