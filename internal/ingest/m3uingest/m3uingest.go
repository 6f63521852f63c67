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

// Package m3uingest turns an m3u-kind Source's playlist into SourceChannel
// rows in the Catalog Store, off the streaming hot path: parse once,
// persist normalized rows the Variant Resolver can join against.
package m3uingest

import (
	"fmt"

	"github.com/jamesnetherton/m3u"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// Store is the slice of the Catalog Store ingestion needs to persist
// discovered channels.
type Store interface {
	UpsertSourceChannel(catalog.SourceChannel) error
	SourceCleanupRules(sourceID int) ([]catalog.CleanupRule, error)
}

const (
	tagTVGLogo  = "tvg-logo"
	tagGroup    = "group-title"
	tagTVGID    = "tvg-id"
	tagTVGChNum = "tvg-chno"
)

// Run fetches and parses playlistURL, cleans and normalizes each track's
// name, and upserts one SourceChannel per track with a non-empty URI.
// Tracks whose normalized name comes back empty are still persisted; they
// are kept but never deduplicated into variants.
func Run(store Store, sourceID int, playlistURL string) (int, error) {
	rules, err := store.SourceCleanupRules(sourceID)
	if err != nil {
		logging.Warn("m3uingest: source %d has no cleanup rules yet: %v", sourceID, err)
	}

	playlist, err := m3u.Parse(playlistURL)
	if err != nil {
		return 0, fmt.Errorf("m3uingest: parse %s: %w", playlistURL, err)
	}

	count := 0
	for _, track := range playlist.Tracks {
		if track.URI == "" {
			continue
		}
		sc := catalog.SourceChannel{
			SourceID: sourceID,
			URL:      track.URI,
			TVGName:  track.Name,
		}
		for _, tag := range track.Tags {
			switch tag.Name {
			case tagTVGLogo:
				sc.TVGLogo = tag.Value
			case tagGroup:
				sc.Group = tag.Value
			}
		}
		if sc.TVGName == "" {
			sc.TVGName = track.Name
		}

		sc.NormalizedName, sc.Quality = catalog.Normalize(sc.TVGName, rules)

		if err := store.UpsertSourceChannel(sc); err != nil {
			logging.Warn("m3uingest: upsert %q failed: %v", sc.URL, err)
			continue
		}
		count++
	}

	logging.Info("m3uingest: source %d: ingested %d channels from %s", sourceID, count, playlistURL)
	return count, nil
}
