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

// Package xtreamingest turns an xtream-kind Source's live-stream catalog
// into SourceChannel rows: it walks GetLiveCategories/GetLiveStreams and
// persists one row per stream, since there is no downstream M3U to
// regenerate.
package xtreamingest

import (
	"context"
	"fmt"

	xtreamcodes "github.com/tellytv/go.xtream-codes"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/logging"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; M3UManager/1.0)"

// Store is the slice of the Catalog Store ingestion needs.
type Store interface {
	UpsertSourceChannel(catalog.SourceChannel) error
	SourceCleanupRules(sourceID int) ([]catalog.CleanupRule, error)
}

// Run authenticates against an Xtream Codes panel, walks every live
// category, and upserts one SourceChannel per stream. The stream URL is the
// panel's own /live/{user}/{pass}/{id}.ts playback URI (this is the
// upstream URL the Session Pump will later fetch, not a client-facing URL).
func Run(ctx context.Context, store Store, sourceID int, baseURL, username, password string) (int, error) {
	rules, err := store.SourceCleanupRules(sourceID)
	if err != nil {
		logging.Warn("xtreamingest: source %d has no cleanup rules yet: %v", sourceID, err)
	}

	client, err := xtreamcodes.NewClientWithUserAgent(ctx, username, password, baseURL, defaultUserAgent)
	if err != nil {
		return 0, fmt.Errorf("xtreamingest: login to %s: %w", baseURL, err)
	}

	categories, err := client.GetLiveCategories()
	if err != nil {
		return 0, fmt.Errorf("xtreamingest: get_live_categories: %w", err)
	}

	count := 0
	for _, category := range categories {
		streams, err := client.GetLiveStreams(fmt.Sprint(category.ID))
		if err != nil {
			logging.Warn("xtreamingest: source %d category %v: %v", sourceID, category.ID, err)
			continue
		}

		for _, live := range streams {
			name := live.Name
			if name == "" {
				continue
			}
			streamURL := fmt.Sprintf("%s/live/%s/%s/%s.ts", baseURL, username, password, fmt.Sprint(live.ID))

			sc := catalog.SourceChannel{
				SourceID: sourceID,
				URL:      streamURL,
				TVGName:  name,
				TVGLogo:  live.Icon,
				Group:    category.Name,
			}
			sc.NormalizedName, sc.Quality = catalog.Normalize(sc.TVGName, rules)

			if err := store.UpsertSourceChannel(sc); err != nil {
				logging.Warn("xtreamingest: upsert %q failed: %v", sc.URL, err)
				continue
			}
			count++
		}
	}

	logging.Info("xtreamingest: source %d: ingested %d live channels from %s", sourceID, count, baseURL)
	return count, nil
}
