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

// Package stream implements the Session Pump: per-channel upstream
// fetch, pre-buffer join-smoothing, rolling late-join buffer, broadcast to
// attached clients, stall detection, and reconnect-on-drop.
package stream

import (
	"sync"
	"time"
)

type chunkEntry struct {
	data []byte
	ts   time.Time
}

// PreBuffer is the one-shot FIFO used only during FillingPreBuffer to
// absorb initial jitter and align clients to an MPEG-TS sync point.
type PreBuffer struct {
	mu      sync.Mutex
	entries []chunkEntry
}

// Push appends chunk to the FIFO; it is not forwarded to clients until
// Flush.
func (p *PreBuffer) Push(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	p.mu.Lock()
	p.entries = append(p.entries, chunkEntry{data: cp, ts: time.Now()})
	p.mu.Unlock()
}

// OldestAge returns the age of the oldest buffered entry, and whether the
// buffer is non-empty.
func (p *PreBuffer) OldestAge() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return 0, false
	}
	return time.Since(p.entries[0].ts), true
}

// Flush concatenates every buffered chunk, locates an MPEG-TS sync point
// (preferring one that also carries a video keyframe), and returns the
// contiguous byte range starting at that offset. The pre-buffer is cleared
// as a side effect.
func (p *PreBuffer) Flush() []byte {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	total := 0
	for _, e := range entries {
		total += len(e.data)
	}
	buf := make([]byte, 0, total)
	for _, e := range entries {
		buf = append(buf, e.data...)
	}

	offset, _, ok := FindSyncPoint(buf)
	if !ok {
		return buf
	}
	return buf[offset:]
}

// tsPacketSize is the fixed MPEG-TS packet size in bytes.
const tsPacketSize = 188

// FindSyncPoint scans buf for the lowest offset i such that buf[i] and
// buf[i+188] are both the MPEG-TS sync byte (0x47), reporting whether that
// packet also carries a Payload Unit Start Indicator and a video PES start
// code (a probable keyframe). If no such keyframe-bearing sync is found but
// a plain double-sync offset exists, that offset is returned with
// hasKeyframe=false. ok is false only if no double-sync offset exists at
// all.
func FindSyncPoint(buf []byte) (offset int, hasKeyframe bool, ok bool) {
	firstDouble := -1
	for i := 0; i+tsPacketSize < len(buf); i++ {
		if buf[i] != 0x47 || buf[i+tsPacketSize] != 0x47 {
			continue
		}
		if firstDouble == -1 {
			firstDouble = i
		}
		if packetIsKeyframe(buf, i) {
			return i, true, true
		}
	}
	if firstDouble != -1 {
		return firstDouble, false, true
	}
	return 0, false, false
}

// packetIsKeyframe reports whether the TS packet starting at i has its
// Payload Unit Start Indicator set and contains a video PES start code
// within its 188-byte window.
func packetIsKeyframe(buf []byte, i int) bool {
	if buf[i+1]&0x40 == 0 {
		return false
	}
	end := i + tsPacketSize
	if end > len(buf) {
		end = len(buf)
	}
	return containsVideoPESStart(buf[i:end])
}

// containsVideoPESStart reports whether window contains the PES start code
// 0x00 0x00 0x01 followed by a video elementary stream id in [0xE0, 0xEF].
func containsVideoPESStart(window []byte) bool {
	for j := 0; j+3 < len(window); j++ {
		if window[j] == 0x00 && window[j+1] == 0x00 && window[j+2] == 0x01 {
			sid := window[j+3]
			if sid >= 0xE0 && sid <= 0xEF {
				return true
			}
		}
	}
	return false
}
