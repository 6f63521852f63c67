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

// Package variant implements the Variant Resolver & Admission Controller:
// given a requested logical channel, it enumerates equivalent upstream
// variants, orders them by source priority and quality, and decides
// whether admitting a request (by joining or by creating a new Session) is
// permitted under per-source and per-user capacity limits.
package variant

import (
	"sort"
	"time"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

// CatalogReader is the read-only slice of the Catalog Store the resolver
// needs.
type CatalogReader interface {
	LookupPlaylistChannel(id int) (*catalog.PlaylistChannel, error)
	LookupSourceChannelByURL(url string) (*catalog.SourceChannel, error)
	ListVariants(normalizedName string) ([]catalog.Variant, error)
}

// ActivitySnapshot answers the capacity questions admission needs. Counts
// are derived from the Session Registry at decision time; there is no
// separate counter table to drift out of sync.
type ActivitySnapshot interface {
	// ActiveSessionsForSource returns the count of live Sessions whose
	// source is sourceID.
	ActiveSessionsForSource(sourceID int) int
	// ActiveSessionsForUser returns the count of live Sessions owned by
	// username.
	ActiveSessionsForUser(username string) int
	// HasLiveSession reports whether a Session already exists for
	// playlistChannelID.
	HasLiveSession(playlistChannelID int) bool
}

// Resolver enumerates a channel's variants and applies the admission checks.
type Resolver struct {
	Catalog  CatalogReader
	Activity ActivitySnapshot
}

func New(catalogReader CatalogReader, activity ActivitySnapshot) *Resolver {
	return &Resolver{Catalog: catalogReader, Activity: activity}
}

// ResolveVariants maps a logical channel to its ordered candidate upstream
// URLs: available variants first, capacity-full ones after as last-resort
// fallbacks, each partition sorted by (source priority, quality rank).
func (r *Resolver) ResolveVariants(playlistChannelID int) (*catalog.PlaylistChannel, []catalog.Variant, error) {
	pc, err := r.Catalog.LookupPlaylistChannel(playlistChannelID)
	if err != nil {
		return nil, nil, xerr.ErrChannelNotFound
	}

	sc, err := r.Catalog.LookupSourceChannelByURL(pc.URL)
	if err != nil || sc.NormalizedName == "" {
		// No SourceChannel, or it never normalized: a single-variant list
		// containing just the PlaylistChannel itself.
		return pc, []catalog.Variant{{
			SourceChannelID: 0,
			URL:             pc.URL,
			TVGName:         pc.TVGName,
			SourceID:        pc.SourceID,
		}}, nil
	}

	variants, err := r.Catalog.ListVariants(sc.NormalizedName)
	if err != nil {
		return nil, nil, err
	}

	for i := range variants {
		v := &variants[i]
		v.ActiveCount = r.Activity.ActiveSessionsForSource(v.SourceID)
		v.Full = v.SourceMaxStreams != 0 && v.ActiveCount >= v.SourceMaxStreams
	}

	var available, full []catalog.Variant
	for _, v := range variants {
		if v.Full {
			full = append(full, v)
		} else {
			available = append(available, v)
		}
	}
	sortByPriorityAndQuality(available)
	sortByPriorityAndQuality(full)

	return pc, append(available, full...), nil
}

func sortByPriorityAndQuality(variants []catalog.Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].SourcePriority != variants[j].SourcePriority {
			return variants[i].SourcePriority < variants[j].SourcePriority
		}
		return variants[i].Quality.Rank() < variants[j].Quality.Rank()
	})
}

// CheckUserAdmission implements the orthogonal user-capacity half of the
// admission contract. It must be checked before variant iteration begins,
// since no amount of variant iteration helps a user already at their
// connection limit.
func CheckUserAdmission(user *catalog.User, now time.Time, activity ActivitySnapshot) error {
	if user.Expired(now) {
		return xerr.ErrAccountExpired
	}
	if user.MaxConnections == 0 {
		return nil
	}
	if activity.ActiveSessionsForUser(user.Username) >= user.MaxConnections {
		return xerr.ErrUserAtCapacity
	}
	return nil
}

// CheckSourceAdmission implements the source-capacity half of the
// admission contract for a candidate variant. If a live Session already
// exists for playlistChannelID, admission is implicit (the client simply
// joins; no capacity recount). Otherwise it rechecks the variant's current
// source capacity against live Sessions.
func CheckSourceAdmission(v catalog.Variant, playlistChannelID int, activity ActivitySnapshot) error {
	if activity.HasLiveSession(playlistChannelID) {
		return nil
	}
	if v.SourceMaxStreams == 0 {
		return nil
	}
	if activity.ActiveSessionsForSource(v.SourceID) >= v.SourceMaxStreams {
		return xerr.ErrSourceAtCapacity
	}
	return nil
}
