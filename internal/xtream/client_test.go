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

package xtream

import "testing"

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	if _, err := New("u", "p", "http://[::1"); err == nil {
		t.Fatal("expected an error for a malformed base URL")
	}
}

func TestFixJSONSyntaxErrorsTrimsTrailingCommas(t *testing.T) {
	in := `[{"a":1},{"b":2},]`
	want := `[{"a":1},{"b":2}]`
	if got := fixJSONSyntaxErrors(in); got != want {
		t.Fatalf("fixJSONSyntaxErrors(%q) = %q, want %q", in, got, want)
	}
}

func TestBalanceBracketsAndBracesAddsMissingClosers(t *testing.T) {
	in := `[{"a":1}`
	got := balanceBracketsAndBraces(in)
	if got != `[{"a":1}]` {
		t.Fatalf("unexpected balance result: %q", got)
	}
}

func TestRemoveProblematicCharactersStripsControlBytes(t *testing.T) {
	in := "abc\x00def\x01ghi"
	got := removeProblematicCharacters(in)
	if got != "abcdefghi" {
		t.Fatalf("removeProblematicCharacters(%q) = %q", in, got)
	}
}

func TestFallbackForActionShapes(t *testing.T) {
	if _, ok := fallbackForAction(ActionLiveStreams).([]interface{}); !ok {
		t.Fatal("expected get_live_streams fallback to be a slice")
	}
	if _, ok := fallbackForAction(ActionVodInfo).(map[string]interface{}); !ok {
		t.Fatal("expected get_vod_info fallback to be a map")
	}
}
