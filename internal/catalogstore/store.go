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

// Package catalogstore is the Postgres-backed Catalog Store: the core's
// only persistent dependency, and the only thing on the hot path that
// issues SQL. It exposes read operations to the streaming core plus the
// narrow set of writes the core itself is responsible for (FailedStream,
// StreamHistory) and the writes the ingest packages perform off the hot
// path.
package catalogstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// Store wraps the database connection pool.
type Store struct {
	db *sql.DB
}

// Config names the Postgres connection parameters, resolved by the CLI
// layer from flags/env and passed in explicitly.
type Config struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// Open connects to Postgres, verifies the connection, and migrates the
// schema.
func Open(cfg Config) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password,
	)
	logging.Debug("catalogstore: connecting host=%s port=%s dbname=%s user=%s", cfg.Host, cfg.Port, cfg.Name, cfg.User)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogstore: ping: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = sql.ErrNoRows

// LookupPlaylistChannel resolves a curated playlist entry by its id.
func (s *Store) LookupPlaylistChannel(id int) (*catalog.PlaylistChannel, error) {
	pc := &catalog.PlaylistChannel{}
	err := s.db.QueryRow(`
		SELECT id, playlist_id, url, source_id, tvg_name, COALESCE(group_title, '')
		FROM playlist_channels WHERE id = $1
	`, id).Scan(&pc.ID, &pc.PlaylistID, &pc.URL, &pc.SourceID, &pc.TVGName, &pc.GroupTitle)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// LookupSourceChannelByURL resolves the raw channel behind an upstream URL;
// its normalized name is what variant discovery keys on.
func (s *Store) LookupSourceChannelByURL(url string) (*catalog.SourceChannel, error) {
	sc := &catalog.SourceChannel{URL: url}
	var quality string
	err := s.db.QueryRow(`
		SELECT id, source_id, tvg_name, COALESCE(tvg_logo, ''), COALESCE(group_title, ''), quality, normalized_name
		FROM source_channels WHERE url = $1
	`, url).Scan(&sc.ID, &sc.SourceID, &sc.TVGName, &sc.TVGLogo, &sc.Group, &quality, &sc.NormalizedName)
	if err != nil {
		return nil, err
	}
	sc.Quality = catalog.Quality(quality)
	return sc, nil
}

// ListVariants returns every SourceChannel sharing normalizedName, joined
// with its Source's priority and stream cap. Ordering by (priority, quality
// rank) is applied in Go since quality rank isn't a plain column sort.
func (s *Store) ListVariants(normalizedName string) ([]catalog.Variant, error) {
	rows, err := s.db.Query(`
		SELECT sc.id, sc.url, sc.tvg_name, sc.quality, sc.source_id, src.priority, src.max_streams
		FROM source_channels sc
		JOIN sources src ON src.id = sc.source_id
		WHERE sc.normalized_name = $1
	`, normalizedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []catalog.Variant
	for rows.Next() {
		var v catalog.Variant
		var quality string
		if err := rows.Scan(&v.SourceChannelID, &v.URL, &v.TVGName, &quality, &v.SourceID, &v.SourcePriority, &v.SourceMaxStreams); err != nil {
			return nil, err
		}
		v.Quality = catalog.Quality(quality)
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// LookupUser resolves a user record by username.
func (s *Store) LookupUser(username string) (*catalog.User, error) {
	u := &catalog.User{Username: username}
	var expires sql.NullTime
	err := s.db.QueryRow(`
		SELECT password_hash, live_playlist_id, vod_playlist_id, max_connections, expires_at, active
		FROM users WHERE username = $1
	`, username).Scan(&u.PasswordHash, &u.LivePlaylistID, &u.VODPlaylistID, &u.MaxConnections, &expires, &u.Active)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		u.ExpiresAt = &t
	}
	return u, nil
}

// RecordFailedStream increments the observability-only failure counter for
// a (playlist channel, url) pair. Best-effort: failures here must never
// interrupt variant failover.
func (s *Store) RecordFailedStream(playlistChannelID int, url string, lastErr string, status int) {
	_, err := s.db.Exec(`
		INSERT INTO failed_streams (playlist_channel_id, url, last_error, last_status, count, last_at)
		VALUES ($1, $2, $3, $4, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (playlist_channel_id, url) DO UPDATE SET
			last_error = EXCLUDED.last_error,
			last_status = EXCLUDED.last_status,
			count = failed_streams.count + 1,
			last_at = CURRENT_TIMESTAMP
	`, playlistChannelID, url, lastErr, status)
	if err != nil {
		logging.Warn("catalogstore: failed to record FailedStream: %v", err)
	}
}

// AppendStreamHistory writes the append-only StreamHistory row for a
// terminated authenticated session. Best-effort: a failing write must not
// crash the pump.
func (s *Store) AppendStreamHistory(h catalog.StreamHistory) {
	_, err := s.db.Exec(`
		INSERT INTO stream_history (username, playlist_channel_id, started_at, ended_at, duration_s)
		VALUES ($1, $2, $3, $4, $5)
	`, h.Username, h.PlaylistChannelID, h.StartedAt, h.EndedAt, h.DurationSeconds)
	if err != nil {
		logging.Warn("catalogstore: failed to append StreamHistory: %v", err)
	}
}

// CreateTemporaryLink persists a short-lived, credential-free stream token.
func (s *Store) CreateTemporaryLink(token, username string, playlistChannelID int, expiresAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO temporary_links (token, username, playlist_channel_id, expires_at)
		VALUES ($1, $2, $3, $4)
	`, token, username, playlistChannelID, expiresAt)
	return err
}

// TemporaryLink is a resolved, still-valid temporary link.
type TemporaryLink struct {
	Token             string
	Username          string
	PlaylistChannelID int
	ExpiresAt         time.Time
}

// GetTemporaryLink resolves a token to its channel, only if unexpired.
func (s *Store) GetTemporaryLink(token string) (*TemporaryLink, error) {
	tl := &TemporaryLink{Token: token}
	err := s.db.QueryRow(`
		SELECT username, playlist_channel_id, expires_at
		FROM temporary_links WHERE token = $1 AND expires_at > CURRENT_TIMESTAMP
	`, token).Scan(&tl.Username, &tl.PlaylistChannelID, &tl.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return tl, nil
}

// UpsertSource inserts a new Source row, returning its id. An existing row
// is never updated: every call creates a fresh Source.
func (s *Store) UpsertSource(src catalog.Source) (int, error) {
	rulesJSON, err := json.Marshal(src.CleanupRules)
	if err != nil {
		return 0, err
	}
	var id int
	err = s.db.QueryRow(`
		INSERT INTO sources (name, kind, url, username, password, priority, max_streams, cleanup_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, src.Name, string(src.Kind), src.URL, src.Username, src.Password, src.Priority, src.MaxStreams, rulesJSON).Scan(&id)
	return id, err
}

// LookupXtreamSource returns the preferred xtream-kind Source, the one the
// EPG/player_api passthrough routes proxy to. Ordered by priority so a
// deployment with several panels forwards from the same source variant
// resolution prefers.
func (s *Store) LookupXtreamSource() (*catalog.Source, error) {
	src := &catalog.Source{Kind: catalog.SourceKindXtream}
	err := s.db.QueryRow(`
		SELECT id, name, url, COALESCE(username, ''), COALESCE(password, ''), priority, max_streams
		FROM sources WHERE kind = $1 AND url <> ''
		ORDER BY priority ASC, id ASC LIMIT 1
	`, string(catalog.SourceKindXtream)).Scan(
		&src.ID, &src.Name, &src.URL, &src.Username, &src.Password, &src.Priority, &src.MaxStreams)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// UpsertSourceChannel creates or refreshes a raw channel discovered during
// ingestion, keyed by its upstream URL.
func (s *Store) UpsertSourceChannel(sc catalog.SourceChannel) error {
	_, err := s.db.Exec(`
		INSERT INTO source_channels (source_id, url, tvg_name, tvg_logo, group_title, quality, normalized_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			tvg_name = EXCLUDED.tvg_name,
			tvg_logo = EXCLUDED.tvg_logo,
			group_title = EXCLUDED.group_title,
			quality = EXCLUDED.quality,
			normalized_name = EXCLUDED.normalized_name
	`, sc.SourceID, sc.URL, sc.TVGName, sc.TVGLogo, sc.Group, string(sc.Quality), sc.NormalizedName)
	return err
}

// UpsertPlaylistChannel inserts a new curated playlist entry, returning its
// id. An existing entry is never refreshed: every call adds a row.
func (s *Store) UpsertPlaylistChannel(pc catalog.PlaylistChannel) (int, error) {
	var id int
	err := s.db.QueryRow(`
		INSERT INTO playlist_channels (playlist_id, url, source_id, tvg_name, group_title)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, pc.PlaylistID, pc.URL, pc.SourceID, pc.TVGName, pc.GroupTitle).Scan(&id)
	return id, err
}

// SourceCleanupRules loads a Source's ordered name-cleanup ruleset for
// ingestion-time normalization.
func (s *Store) SourceCleanupRules(sourceID int) ([]catalog.CleanupRule, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT cleanup_rules FROM sources WHERE id = $1`, sourceID).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var rules []catalog.CleanupRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
