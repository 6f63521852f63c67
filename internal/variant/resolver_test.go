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

package variant

import (
	"testing"
	"time"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

type fakeCatalog struct {
	channels map[int]*catalog.PlaylistChannel
	byURL    map[string]*catalog.SourceChannel
	variants map[string][]catalog.Variant
}

func (f *fakeCatalog) LookupPlaylistChannel(id int) (*catalog.PlaylistChannel, error) {
	pc, ok := f.channels[id]
	if !ok {
		return nil, xerr.ErrChannelNotFound
	}
	return pc, nil
}

func (f *fakeCatalog) LookupSourceChannelByURL(url string) (*catalog.SourceChannel, error) {
	sc, ok := f.byURL[url]
	if !ok {
		return nil, xerr.ErrChannelNotFound
	}
	return sc, nil
}

func (f *fakeCatalog) ListVariants(normalizedName string) ([]catalog.Variant, error) {
	return append([]catalog.Variant(nil), f.variants[normalizedName]...), nil
}

type fakeActivity struct {
	bySource  map[int]int
	byUser    map[string]int
	liveChans map[int]bool
}

func (f *fakeActivity) ActiveSessionsForSource(sourceID int) int { return f.bySource[sourceID] }
func (f *fakeActivity) ActiveSessionsForUser(username string) int { return f.byUser[username] }
func (f *fakeActivity) HasLiveSession(playlistChannelID int) bool { return f.liveChans[playlistChannelID] }

func TestResolveVariantsOrdering(t *testing.T) {
	cat := &fakeCatalog{
		channels: map[int]*catalog.PlaylistChannel{
			42: {ID: 42, URL: "http://s1/a"},
		},
		byURL: map[string]*catalog.SourceChannel{
			"http://s1/a": {NormalizedName: "bbcone"},
		},
		variants: map[string][]catalog.Variant{
			"bbcone": {
				{SourceChannelID: 1, SourceID: 2, SourcePriority: 2, Quality: catalog.QualityHD, SourceMaxStreams: 0},
				{SourceChannelID: 2, SourceID: 1, SourcePriority: 1, Quality: catalog.QualityFHD, SourceMaxStreams: 0},
				{SourceChannelID: 3, SourceID: 1, SourcePriority: 1, Quality: catalog.QualityUHD, SourceMaxStreams: 0},
			},
		},
	}
	act := &fakeActivity{bySource: map[int]int{}, byUser: map[string]int{}, liveChans: map[int]bool{}}
	r := New(cat, act)

	_, variants, err := r.ResolveVariants(42)
	if err != nil {
		t.Fatalf("ResolveVariants: %v", err)
	}
	if len(variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(variants))
	}
	if variants[0].SourceChannelID != 3 || variants[1].SourceChannelID != 2 || variants[2].SourceChannelID != 1 {
		t.Fatalf("unexpected ordering: %+v", variants)
	}
}

func TestResolveVariantsFullPartitionedLast(t *testing.T) {
	cat := &fakeCatalog{
		channels: map[int]*catalog.PlaylistChannel{1: {ID: 1, URL: "u"}},
		byURL:    map[string]*catalog.SourceChannel{"u": {NormalizedName: "x"}},
		variants: map[string][]catalog.Variant{
			"x": {
				{SourceChannelID: 1, SourceID: 10, SourcePriority: 1, SourceMaxStreams: 1},
				{SourceChannelID: 2, SourceID: 20, SourcePriority: 2, SourceMaxStreams: 1},
			},
		},
	}
	act := &fakeActivity{bySource: map[int]int{10: 1}, byUser: map[string]int{}, liveChans: map[int]bool{}}
	r := New(cat, act)
	_, variants, err := r.ResolveVariants(1)
	if err != nil {
		t.Fatalf("ResolveVariants: %v", err)
	}
	if variants[0].SourceChannelID != 2 {
		t.Fatalf("expected available source first, got %+v", variants)
	}
	if !variants[1].Full {
		t.Fatalf("expected second variant marked full: %+v", variants[1])
	}
}

func TestResolveVariantsNoSourceChannelFallsBackToChannelItself(t *testing.T) {
	cat := &fakeCatalog{
		channels: map[int]*catalog.PlaylistChannel{7: {ID: 7, URL: "http://unknown", SourceID: 5}},
		byURL:    map[string]*catalog.SourceChannel{},
		variants: map[string][]catalog.Variant{},
	}
	act := &fakeActivity{bySource: map[int]int{}, byUser: map[string]int{}, liveChans: map[int]bool{}}
	r := New(cat, act)
	_, variants, err := r.ResolveVariants(7)
	if err != nil {
		t.Fatalf("ResolveVariants: %v", err)
	}
	if len(variants) != 1 || variants[0].URL != "http://unknown" {
		t.Fatalf("expected single fallback variant, got %+v", variants)
	}
}

func TestResolveVariantsChannelNotFound(t *testing.T) {
	cat := &fakeCatalog{channels: map[int]*catalog.PlaylistChannel{}, byURL: map[string]*catalog.SourceChannel{}, variants: map[string][]catalog.Variant{}}
	act := &fakeActivity{bySource: map[int]int{}, byUser: map[string]int{}, liveChans: map[int]bool{}}
	r := New(cat, act)
	_, _, err := r.ResolveVariants(999)
	if err != xerr.ErrChannelNotFound {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestCheckUserAdmission(t *testing.T) {
	act := &fakeActivity{byUser: map[string]int{"alice": 1}}
	u := &catalog.User{Username: "alice", MaxConnections: 1}
	if err := CheckUserAdmission(u, time.Now(), act); err != xerr.ErrUserAtCapacity {
		t.Fatalf("expected ErrUserAtCapacity, got %v", err)
	}

	u2 := &catalog.User{Username: "bob", MaxConnections: 2}
	act.byUser["bob"] = 1
	if err := CheckUserAdmission(u2, time.Now(), act); err != nil {
		t.Fatalf("expected admission under limit, got %v", err)
	}
}

func TestCheckUserAdmissionExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	u := &catalog.User{Username: "alice", ExpiresAt: &past}
	act := &fakeActivity{byUser: map[string]int{}}
	if err := CheckUserAdmission(u, time.Now(), act); err != xerr.ErrAccountExpired {
		t.Fatalf("expected ErrAccountExpired, got %v", err)
	}
}

func TestCheckSourceAdmissionJoinsExistingSessionRegardlessOfCapacity(t *testing.T) {
	act := &fakeActivity{bySource: map[int]int{1: 5}, liveChans: map[int]bool{42: true}}
	v := catalog.Variant{SourceID: 1, SourceMaxStreams: 1}
	if err := CheckSourceAdmission(v, 42, act); err != nil {
		t.Fatalf("expected implicit admission when session already live, got %v", err)
	}
}

func TestCheckSourceAdmissionRejectsWhenFull(t *testing.T) {
	act := &fakeActivity{bySource: map[int]int{1: 2}, liveChans: map[int]bool{}}
	v := catalog.Variant{SourceID: 1, SourceMaxStreams: 2}
	if err := CheckSourceAdmission(v, 42, act); err != xerr.ErrSourceAtCapacity {
		t.Fatalf("expected ErrSourceAtCapacity, got %v", err)
	}
}

func TestCheckSourceAdmissionMonotoneInCapacity(t *testing.T) {
	v := catalog.Variant{SourceID: 1, SourceMaxStreams: 3}
	for count := 0; count < 3; count++ {
		act := &fakeActivity{bySource: map[int]int{1: count}, liveChans: map[int]bool{}}
		if err := CheckSourceAdmission(v, 42, act); err != nil {
			t.Fatalf("expected admission at count %d < max, got %v", count, err)
		}
	}
	act := &fakeActivity{bySource: map[int]int{1: 3}, liveChans: map[int]bool{}}
	if err := CheckSourceAdmission(v, 42, act); err != xerr.ErrSourceAtCapacity {
		t.Fatalf("expected rejection at count == max, got %v", err)
	}
}
