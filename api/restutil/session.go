// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package restutil

import (
	"net/http"

	"github.com/rtask/rtask/rtask"
)

// SessionID resolves the caller's session id. The x-session-id header wins
// over the rt_session cookie; with neither present a fresh id is minted and
// set as a cookie so the browser keeps the identity across requests.
func SessionID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(rtask.SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(rtask.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := rtask.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     rtask.SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
