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

package catalogstore

import "testing"

func TestHashAndVerifyScrypt(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Fatal("expected correct password to verify")
	}
	if VerifyPassword("wrong password", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestVerifyPasswordLegacyPlaintext(t *testing.T) {
	if !VerifyPassword("plaintextpw", "plaintextpw") {
		t.Fatal("expected legacy plaintext match to verify")
	}
	if VerifyPassword("wrong", "plaintextpw") {
		t.Fatal("expected legacy plaintext mismatch to fail")
	}
}

func TestVerifyPasswordRejectsUnknownScheme(t *testing.T) {
	if VerifyPassword("x", "bcrypt$abcd$1234") {
		t.Fatal("expected unknown scheme to be rejected")
	}
}

func TestHashPasswordProducesDistinctSalts(t *testing.T) {
	h1, _ := HashPassword("same")
	h2, _ := HashPassword("same")
	if h1 == h2 {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}
