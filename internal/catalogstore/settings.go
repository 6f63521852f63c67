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
	"os"
	"strconv"
)

// Settings are the streaming tunables that may live either in the
// environment or in the Catalog Store's settings table, read fresh per new
// session (not hot-reloaded mid-session).
type Settings struct {
	BufferSeconds    int
	MaxReconnects    int
	ReconnectDelayMS int
}

// LoadSettings reads the settings table, falling back to the environment
// (then the built-in defaults) for anything unset.
func (s *Store) LoadSettings() Settings {
	out := Settings{
		BufferSeconds:    envInt("PROXY_BUFFER_SECONDS", 3),
		MaxReconnects:    envInt("STREAM_MAX_RECONNECTS", 5),
		ReconnectDelayMS: envInt("STREAM_RECONNECT_DELAY", 2000),
	}

	if v, ok := s.getSetting("PROXY_BUFFER_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.BufferSeconds = n
		}
	}
	if v, ok := s.getSetting("STREAM_MAX_RECONNECTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.MaxReconnects = n
		}
	}
	if v, ok := s.getSetting("STREAM_RECONNECT_DELAY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.ReconnectDelayMS = n
		}
	}
	return out
}

func (s *Store) getSetting(key string) (string, bool) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// SetSetting persists a runtime setting override.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
