/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package httpapi

import (
	"net/http"
	"testing"

	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{xerr.ErrChannelNotFound, http.StatusNotFound},
		{xerr.ErrUserInvalid, http.StatusUnauthorized},
		{xerr.ErrAccountExpired, http.StatusForbidden},
		{xerr.ErrUserAtCapacity, http.StatusTooManyRequests},
		// ErrSourceAtCapacity only reaches here once every variant has been
		// tried and rejected (see Attacher.Attach), so it is a 502 like any
		// other all-variants-failed outcome, not a distinct 503.
		{xerr.ErrSourceAtCapacity, http.StatusBadGateway},
		{xerr.ErrUpstreamUnreachable, http.StatusBadGateway},
	}
	for _, c := range cases {
		if got := statusForError(c.err); got != c.want {
			t.Errorf("statusForError(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestVerifyQueryPasswordRejectsEmpty(t *testing.T) {
	if verifyQueryPassword("", "scrypt$aa$bb") {
		t.Fatal("expected empty password to be rejected")
	}
}
