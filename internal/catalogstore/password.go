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

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scryptScheme is the only KDF scheme this store writes; legacy plaintext
// hashes (no "$" separators) are still accepted on read for migration.
const scryptScheme = "scrypt"

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// HashPassword produces a scheme$salt$digest string.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("catalogstore: generating salt: %w", err)
	}
	digest, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("catalogstore: hashing password: %w", err)
	}
	return fmt.Sprintf("%s$%s$%s", scryptScheme, hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// VerifyPassword accepts the salted scheme$salt$digest form and a legacy
// plaintext fallback for accounts not yet migrated, and always compares in
// constant time.
func VerifyPassword(plain, stored string) bool {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 {
		// Legacy plaintext account.
		return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1
	}

	scheme, saltHex, digestHex := parts[0], parts[1], parts[2]
	if scheme != scryptScheme {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	wantDigest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	gotDigest, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, len(wantDigest))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(gotDigest, wantDigest) == 1
}
