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

import "sync"

// subscriberQueueSize bounds how far a slow client writer may lag the pump
// before it is evicted; slow subscribers are evicted rather than
// back-pressuring the producer.
const subscriberQueueSize = 64

type subscriber struct {
	queue  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{queue: make(chan []byte, subscriberQueueSize), closed: make(chan struct{})}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// Broadcaster is the pub/sub primitive a Session's pump publishes chunks
// through: one producer, N subscribers, each with its own bounded queue.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[uint64]*subscriber)}
}

// Subscribe registers a new subscriber and returns its id, its receive
// channel, and an idempotent unsubscribe function.
func (b *Broadcaster) Subscribe() (id uint64, ch <-chan []byte, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id = b.nextID
	sub := newSubscriber()
	b.subscribers[id] = sub
	return id, sub.queue, func() { b.remove(id) }
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		sub.close()
		delete(b.subscribers, id)
	}
}

// Publish fans chunk out to every current subscriber in publish order. A
// subscriber whose queue is already full is evicted rather than blocking
// the pump.
func (b *Broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		select {
		case sub.queue <- chunk:
		default:
			sub.close()
			delete(b.subscribers, id)
		}
	}
}

// Count returns the number of currently attached subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// CloseAll detaches every subscriber, used on Session teardown.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
}
