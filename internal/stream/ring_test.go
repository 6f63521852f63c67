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

import "testing"

func TestRingCapacityClamps(t *testing.T) {
	if got := RingCapacity(0); got != 0 {
		t.Fatalf("expected 0 for non-positive buffer seconds, got %d", got)
	}
	if got := RingCapacity(1); got != ringMinBytes {
		t.Fatalf("expected clamp to min %d, got %d", ringMinBytes, got)
	}
	if got := RingCapacity(1000); got != ringMaxBytes {
		t.Fatalf("expected clamp to max %d, got %d", ringMaxBytes, got)
	}
	if got := RingCapacity(10); got != 10*ringBytesPerSecond {
		t.Fatalf("expected unclamped target, got %d", got)
	}
}

func TestRingBufferDiscardsBeforeFirstKeyframe(t *testing.T) {
	r := NewRingBuffer(ringMinBytes)
	r.Append(tsPacket(false, []byte{0x01}))
	if r.Size() != 0 {
		t.Fatalf("expected non-keyframe chunk to be discarded, size=%d", r.Size())
	}

	keyframe := tsPacket(true, videoPESPayload())
	r.Append(keyframe)
	if r.Size() == 0 {
		t.Fatal("expected keyframe chunk to start collection")
	}

	after := tsPacket(false, []byte{0x02})
	r.Append(after)
	if r.Size() != len(keyframe)+len(after) {
		t.Fatalf("expected both chunks retained once collecting, size=%d", r.Size())
	}
}

func TestRingBufferEvictsOverCapacity(t *testing.T) {
	chunkSize := tsPacketSize
	r := NewRingBuffer(chunkSize * 2)
	keyframe := tsPacket(true, videoPESPayload())
	r.Append(keyframe)

	for i := 0; i < 5; i++ {
		r.Append(tsPacket(false, []byte{byte(i)}))
	}

	if r.Size() > chunkSize*2 {
		t.Fatalf("expected ring buffer to stay within capacity, size=%d cap=%d", r.Size(), chunkSize*2)
	}
}

func TestRingBufferZeroCapacityNoOp(t *testing.T) {
	r := NewRingBuffer(0)
	r.Append(tsPacket(true, videoPESPayload()))
	if r.Size() != 0 {
		t.Fatal("expected zero-capacity ring buffer to discard all input")
	}
	if len(r.Snapshot()) != 0 {
		t.Fatal("expected empty snapshot from zero-capacity ring buffer")
	}
}

func TestRingBufferSnapshotConcatenatesInOrder(t *testing.T) {
	r := NewRingBuffer(ringMinBytes)
	keyframe := tsPacket(true, videoPESPayload())
	second := tsPacket(false, []byte{0xAA})
	r.Append(keyframe)
	r.Append(second)

	snap := r.Snapshot()
	if len(snap) != len(keyframe)+len(second) {
		t.Fatalf("expected concatenated snapshot, got len %d", len(snap))
	}
	if snap[0] != 0x47 {
		t.Fatal("expected snapshot to start with sync byte")
	}
}
