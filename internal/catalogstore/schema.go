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
	"fmt"

	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// initSchema creates the Catalog Store's tables if they don't already
// exist; migration by CREATE TABLE IF NOT EXISTS rather than a dedicated
// migration tool.
func (s *Store) initSchema() error {
	logging.Info("catalogstore: initializing schema")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			username TEXT,
			password TEXT,
			priority INTEGER NOT NULL DEFAULT 999,
			max_streams INTEGER NOT NULL DEFAULT 0,
			cleanup_rules JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS source_channels (
			id SERIAL PRIMARY KEY,
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			url TEXT NOT NULL UNIQUE,
			tvg_name TEXT NOT NULL,
			tvg_logo TEXT,
			group_title TEXT,
			quality TEXT NOT NULL DEFAULT '',
			normalized_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_channels_normalized_name
			ON source_channels(normalized_name)`,
		`CREATE TABLE IF NOT EXISTS playlist_channels (
			id SERIAL PRIMARY KEY,
			playlist_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			tvg_name TEXT NOT NULL,
			group_title TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			live_playlist_id INTEGER NOT NULL DEFAULT 0,
			vod_playlist_id INTEGER NOT NULL DEFAULT 0,
			max_connections INTEGER NOT NULL DEFAULT 0,
			expires_at TIMESTAMP,
			active BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS failed_streams (
			playlist_channel_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			last_error TEXT,
			last_status INTEGER,
			count INTEGER NOT NULL DEFAULT 1,
			last_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (playlist_channel_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS stream_history (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			playlist_channel_id INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_s BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS temporary_links (
			token TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			playlist_channel_id INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("catalogstore: schema migration failed: %w", err)
		}
	}

	logging.Info("catalogstore: schema ready")
	return nil
}
