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

package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/registry"
)

type fakeHistory struct {
	mu      sync.Mutex
	entries []catalog.StreamHistory
}

func (f *fakeHistory) AppendStreamHistory(h catalog.StreamHistory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, h)
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// chunkedUpstream serves an indefinite stream of TS-shaped chunks, flushing
// after each write so Session.Start observes a genuine first read.
func chunkedUpstream(t *testing.T, stop <-chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected ResponseWriter to support flushing")
		}
		keyframe := tsPacket(true, videoPESPayload())
		w.WriteHeader(http.StatusOK)
		for {
			select {
			case <-stop:
				return
			case <-r.Context().Done():
				return
			default:
			}
			if _, err := w.Write(keyframe); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}))
}

func TestSessionStartAndAttachLive(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	srv := chunkedUpstream(t, stop)
	defer srv.Close()

	reg := registry.New()
	hist := &fakeHistory{}
	cfg := Config{BufferSeconds: 0, MaxReconnects: 2, ReconnectDelayMS: 10, StallTimeoutMS: 2000}
	sess := NewSession(1, 1, "alice", cfg, srv.Client(), reg, hist, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx, srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// With buffering disabled the flush waits for the first subscriber, so
	// attach before expecting Live.
	id, chunks, _, detach := sess.AttachClient()
	if id == 0 {
		t.Fatal("expected non-zero subscriber id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sess.State() != StateLive {
		if time.Now().After(deadline) {
			t.Fatalf("session did not reach Live, state=%s", sess.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case chunk := <-chunks:
		if len(chunk) == 0 {
			t.Fatal("expected non-empty chunk")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for a live chunk")
	}

	detach()
	sess.Kill()

	select {
	case <-sess.Dead():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not reach Dead after Kill")
	}

	if hist.count() != 1 {
		t.Fatalf("expected 1 StreamHistory entry after a live session terminates, got %d", hist.count())
	}
}

func TestAttachClientBridgeExcludesSubsequentChunks(t *testing.T) {
	reg := registry.New()
	hist := &fakeHistory{}
	cfg := Config{BufferSeconds: 3, MaxReconnects: 1, ReconnectDelayMS: 10}
	sess := NewSession(1, 1, "", cfg, http.DefaultClient, reg, hist, false)
	sess.setState(StateLive)

	before := tsPacket(true, videoPESPayload())
	sess.publishLive(before)

	_, chunks, bridge, detachB := sess.AttachClient()

	after := tsPacket(false, []byte{0xBB})
	sess.publishLive(after)

	// The chunk published before attach is bridge-only; the one published
	// after is queue-only. Nothing crosses the boundary twice or not at all.
	if len(bridge) != len(before) {
		t.Fatalf("expected bridge to hold exactly the pre-attach chunk, got %d bytes", len(bridge))
	}
	select {
	case got := <-chunks:
		if got[0] != 0x47 || got[1] != 0x00 {
			t.Fatalf("unexpected first queued chunk: %x", got[:2])
		}
	default:
		t.Fatal("expected the post-attach chunk on the subscription queue")
	}
	select {
	case got := <-chunks:
		t.Fatalf("unexpected extra chunk on the queue: %d bytes", len(got))
	default:
	}

	detachB()
}

func TestSessionNoHistoryIfNeverLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := registry.New()
	hist := &fakeHistory{}
	cfg := Config{BufferSeconds: 0, MaxReconnects: 0, ReconnectDelayMS: 10}
	sess := NewSession(1, 1, "alice", cfg, srv.Client(), reg, hist, false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.Start(ctx, srv.URL); err == nil {
		t.Fatal("expected Start to fail against a 503 upstream")
	}
	if hist.count() != 0 {
		t.Fatalf("expected no StreamHistory written for a session that never started, got %d", hist.count())
	}
}

func TestSessionKillBeforeLiveSkipsHistory(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	srv := chunkedUpstream(t, stop)
	defer srv.Close()

	reg := registry.New()
	hist := &fakeHistory{}
	cfg := Config{BufferSeconds: 100, MaxReconnects: 2, ReconnectDelayMS: 10, StallTimeoutMS: 2000}
	sess := NewSession(1, 1, "alice", cfg, srv.Client(), reg, hist, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Start(ctx, srv.URL); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.State() != StateFillingPreBuffer {
		t.Fatalf("expected FillingPreBuffer with a large buffer window, got %s", sess.State())
	}

	sess.Kill()
	select {
	case <-sess.Dead():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not reach Dead after Kill")
	}
	if hist.count() != 0 {
		t.Fatalf("expected no StreamHistory for a session killed before reaching Live, got %d", hist.count())
	}
}
