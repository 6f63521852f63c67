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
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/logging"
	"github.com/lucasduport/iptv-gateway/internal/registry"
	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

// State is one of the Session Pump's state machine states.
type State int

const (
	StateStarting State = iota
	StateFillingPreBuffer
	StateLive
	StateReconnecting
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateFillingPreBuffer:
		return "FillingPreBuffer"
	case StateLive:
		return "Live"
	case StateReconnecting:
		return "Reconnecting"
	case StateDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// readChunkSize is the upstream read buffer size.
const readChunkSize = 64 * 1024

// defaultStallTimeoutMS is STALL_TIMEOUT_MS's default.
const defaultStallTimeoutMS = 30000

// defaultUserAgent is sent on every upstream request.
const defaultUserAgent = "Mozilla/5.0 (compatible; M3UManager/1.0)"

// defaultGraceMS is the teardown grace period for VOD-style single-stream
// sessions whose last client disconnects.
const defaultGraceMS = 300

// HistoryWriter is the slice of the Catalog Store the Session needs to
// write StreamHistory on termination.
type HistoryWriter interface {
	AppendStreamHistory(catalog.StreamHistory)
}

// Config holds the per-session tunables resolved from Catalog Store
// settings/environment at attach time.
type Config struct {
	BufferSeconds    int
	MaxReconnects    int
	ReconnectDelayMS int
	StallTimeoutMS   int
	UserAgent        string
	GraceMS          int
}

func (c Config) withDefaults() Config {
	if c.StallTimeoutMS == 0 {
		c.StallTimeoutMS = defaultStallTimeoutMS
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.GraceMS == 0 {
		c.GraceMS = defaultGraceMS
	}
	return c
}

// Session is a live, in-memory worker owning one upstream connection and
// fanning it out to attached clients. It implements registry.Session.
type Session struct {
	playlistChannelID int
	sourceID          int
	owner             string
	isVOD             bool
	cfg               Config
	httpClient        *http.Client
	registry          *registry.Registry
	history           HistoryWriter

	mu               sync.Mutex
	state            State
	url              string
	reachedLive      bool
	bytesIn          int64
	bytesOut         int64
	reconnects       int
	bitrate          float64
	lastBitrateBytes int64
	lastBitrateAt    time.Time
	startedAt        time.Time

	// publishMu orders the pump's publish step (broadcast then ring append)
	// against client attachment (subscribe then ring snapshot). Both halves
	// run under it, so a joiner's bridge and its subscription observe the
	// same point in the chunk stream: no chunk is duplicated across the
	// boundary and none falls between.
	publishMu   sync.Mutex
	preBuffer   *PreBuffer
	ring        *RingBuffer
	broadcaster *Broadcaster

	ctx      context.Context
	cancel   context.CancelFunc
	dead     chan struct{}
	deadOnce sync.Once
}

// NewSession constructs a Session in the Starting state. It does not
// perform any I/O; call Start to begin the upstream fetch.
func NewSession(playlistChannelID, sourceID int, owner string, cfg Config, httpClient *http.Client, reg *registry.Registry, history HistoryWriter, isVOD bool) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		playlistChannelID: playlistChannelID,
		sourceID:          sourceID,
		owner:             owner,
		isVOD:             isVOD,
		cfg:               cfg.withDefaults(),
		httpClient:        httpClient,
		registry:          reg,
		history:           history,
		state:             StateStarting,
		preBuffer:         &PreBuffer{},
		ring:              NewRingBuffer(RingCapacity(cfg.BufferSeconds)),
		broadcaster:       NewBroadcaster(),
		startedAt:         time.Now(),
		ctx:               ctx,
		cancel:            cancel,
		dead:              make(chan struct{}),
	}
}

// SourceID and Owner satisfy registry.Session.
func (s *Session) SourceID() int { return s.sourceID }
func (s *Session) Owner() string { return s.owner }

// PlaylistChannelID returns the logical channel id this Session serves.
func (s *Session) PlaylistChannelID() int { return s.playlistChannelID }

// Dead returns a channel closed once the Session has fully torn down.
func (s *Session) Dead() <-chan struct{} { return s.dead }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	if st == StateLive {
		s.reachedLive = true
	}
	s.mu.Unlock()
}

// State returns the Session's current state machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start performs the initial upstream connect and first read: the "first
// byte received from upstream" milestone the caller wraps with an outer
// timeout. On success it transitions to FillingPreBuffer, ingests the
// first chunk, and launches the background pump. ctx bounds only this
// milestone; once Start returns, the long-running pump uses the Session's
// own abort-tied context.
func (s *Session) Start(ctx context.Context, url string) error {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()

	type connResult struct {
		body io.ReadCloser
		err  error
	}
	connCh := make(chan connResult, 1)
	go func() {
		body, err := s.connectUpstream()
		connCh <- connResult{body, err}
	}()

	var body io.ReadCloser
	select {
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("%w: %v", xerr.ErrUpstreamUnreachable, ctx.Err())
	case res := <-connCh:
		if res.err != nil {
			return res.err
		}
		body = res.body
	}

	buf := make([]byte, readChunkSize)
	type readResult struct {
		n   int
		err error
	}
	readCh := make(chan readResult, 1)
	go func() {
		n, err := body.Read(buf)
		readCh <- readResult{n, err}
	}()

	select {
	case <-ctx.Done():
		body.Close()
		s.cancel()
		return fmt.Errorf("%w: %v", xerr.ErrUpstreamUnreachable, ctx.Err())
	case rr := <-readCh:
		if rr.n == 0 && rr.err != nil {
			body.Close()
			return fmt.Errorf("%w: %v", xerr.ErrUpstreamUnreachable, rr.err)
		}
		s.setState(StateFillingPreBuffer)
		if rr.n > 0 {
			chunk := make([]byte, rr.n)
			copy(chunk, buf[:rr.n])
			s.ingest(chunk)
		}
		go s.pump(body, buf)
		return nil
	}
}

func (s *Session) connectUpstream() (io.ReadCloser, error) {
	s.mu.Lock()
	url := s.url
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerr.ErrUpstreamUnreachable, err)
	}
	setUpstreamHeaders(req, s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerr.ErrUpstreamUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &xerr.UpstreamStatus{Code: resp.StatusCode}
	}
	return resp.Body, nil
}

func setUpstreamHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Accept", "*/*")
}

// pump is the dedicated worker driving the upstream reader for the
// lifetime of the Session: fetch, meter, buffer, broadcast,
// stall-detect, reconnect, and finally tear down.
func (s *Session) pump(body io.ReadCloser, buf []byte) {
	defer body.Close()
	for {
		n, err := s.readChunk(body, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.ingest(chunk)
		}
		if err == nil {
			continue
		}

		body.Close()
		if errors.Is(err, xerr.ErrUpstreamCancelled) {
			s.destroy()
			return
		}

		newBody, ok := s.reconnect()
		if !ok {
			s.mu.Lock()
			exhausted := s.reconnects >= s.cfg.MaxReconnects
			s.mu.Unlock()
			if exhausted {
				logging.Warn("stream: session %d: %v", s.playlistChannelID, xerr.ErrMaxReconnectsExceeded)
			}
			s.destroy()
			return
		}
		body = newBody
	}
}

// readChunk reads one chunk from body, subject to STALL_TIMEOUT_MS, and
// honors Session cancellation.
func (s *Session) readChunk(body io.Reader, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := body.Read(buf)
		ch <- result{n, err}
	}()

	select {
	case <-s.ctx.Done():
		return 0, xerr.ErrUpstreamCancelled
	case <-time.After(time.Duration(s.cfg.StallTimeoutMS) * time.Millisecond):
		return 0, xerr.ErrUpstreamStalled
	case r := <-ch:
		return r.n, r.err
	}
}

// reconnect implements the Reconnecting state: wait
// RECONNECT_DELAY_MS, retry up to MAX_RECONNECTS times cumulatively over
// the session lifetime, but only while clients remain attached. On
// reconnect the pre-buffer is not re-filled; bytes flow directly live.
func (s *Session) reconnect() (io.ReadCloser, bool) {
	for {
		s.mu.Lock()
		if s.reconnects >= s.cfg.MaxReconnects {
			s.mu.Unlock()
			return nil, false
		}
		s.reconnects++
		attempt := s.reconnects
		s.mu.Unlock()

		if s.broadcaster.Count() == 0 {
			return nil, false
		}
		s.setState(StateReconnecting)

		select {
		case <-s.ctx.Done():
			return nil, false
		case <-time.After(time.Duration(s.cfg.ReconnectDelayMS) * time.Millisecond):
		}

		if s.broadcaster.Count() == 0 {
			return nil, false
		}

		logging.Info("stream: session %d reconnect attempt %d/%d", s.playlistChannelID, attempt, s.cfg.MaxReconnects)
		body, err := s.connectUpstream()
		if err != nil {
			logging.Warn("stream: session %d reconnect attempt %d failed: %v", s.playlistChannelID, attempt, err)
			continue
		}

		s.mu.Lock()
		s.preBuffer = &PreBuffer{}
		s.mu.Unlock()
		s.setState(StateLive)
		return body, true
	}
}

// ingest routes one upstream chunk according to the current state: pushed
// to the pre-buffer while FillingPreBuffer (flushing when the flush
// threshold is reached), or published live otherwise.
func (s *Session) ingest(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.meter(chunk)

	if s.State() == StateFillingPreBuffer {
		s.preBuffer.Push(chunk)
		if s.shouldFlush() {
			s.flushPreBuffer()
		}
		return
	}
	s.publishLive(chunk)
}

// shouldFlush implements the half-buffer-ready policy: flush once the
// oldest buffered chunk is older than half the configured window, so the
// burst goes out as soon as it can absorb one average jitter event. With
// buffering disabled the pre-buffer only holds chunks until the initiating
// client has subscribed; flushing into an empty broadcaster would drop
// them.
func (s *Session) shouldFlush() bool {
	if s.cfg.BufferSeconds <= 0 {
		return s.broadcaster.Count() > 0
	}
	age, ok := s.preBuffer.OldestAge()
	if !ok {
		return false
	}
	threshold := time.Duration(s.cfg.BufferSeconds) * 500 * time.Millisecond
	return age >= threshold
}

func (s *Session) flushPreBuffer() {
	buf := s.preBuffer.Flush()
	s.setState(StateLive)
	if len(buf) > 0 {
		s.publishLive(buf)
	}
}

func (s *Session) publishLive(chunk []byte) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.broadcaster.Publish(chunk)
	s.ring.Append(chunk)
}

// meter updates the bytesIn/bytesOut/bitrate counters.
func (s *Session) meter(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(chunk))
	s.bytesIn += n
	s.bytesOut += n * int64(s.broadcaster.Count())

	now := time.Now()
	if s.lastBitrateAt.IsZero() {
		s.lastBitrateAt = now
		s.lastBitrateBytes = s.bytesIn
		return
	}
	if elapsed := now.Sub(s.lastBitrateAt); elapsed >= time.Second {
		s.bitrate = float64(s.bytesIn-s.lastBitrateBytes) / elapsed.Seconds()
		s.lastBitrateBytes = s.bytesIn
		s.lastBitrateAt = now
	}
}

// AttachClient binds one downstream client to the Session: a client
// attaching to a Live (or Reconnecting) session receives the rolling
// buffer's current contents as its bridge, then subscribes for subsequent
// live chunks. A client attaching before Live (e.g. the one that triggered
// creation) gets no bridge, since none exists yet. Subscription and bridge
// snapshot happen under publishMu, so relative to the pump's publish step
// every chunk lands in exactly one of the two: the bridge, or the
// subscriber queue.
func (s *Session) AttachClient() (id uint64, chunks <-chan []byte, bridge []byte, detach func()) {
	s.publishMu.Lock()
	id, chunks, unsubscribe := s.broadcaster.Subscribe()
	state := s.State()
	if state == StateLive || state == StateReconnecting {
		bridge = s.ring.Snapshot()
	}
	s.publishMu.Unlock()

	detach = func() {
		unsubscribe()
		s.onClientDetached()
	}
	return id, chunks, bridge, detach
}

// onClientDetached is the teardown trigger: once the
// attached-client set is empty, live sessions close immediately; VOD-style
// sessions wait a short grace period to absorb reconnect storms.
func (s *Session) onClientDetached() {
	if s.broadcaster.Count() > 0 {
		return
	}
	if !s.isVOD {
		s.Kill()
		return
	}
	time.AfterFunc(time.Duration(s.cfg.GraceMS)*time.Millisecond, func() {
		if s.broadcaster.Count() == 0 {
			s.Kill()
		}
	})
}

// Kill aborts the Session immediately: admin termination, or last client
// gone. It cancels the upstream request, causing the pump's in-flight read
// to return with ErrUpstreamCancelled and transition straight to Dead
// without reconnecting.
func (s *Session) Kill() {
	s.cancel()
}

// destroy is the single owning teardown step: idempotently
// mark Dead, remove from the registry, close all subscribers, and
// best-effort append StreamHistory if an owner exists and the Session ever
// reached Live. Sessions that never reach Live do not get a StreamHistory
// row.
func (s *Session) destroy() {
	s.deadOnce.Do(func() {
		s.setState(StateDead)
		s.registry.Remove(s.playlistChannelID, s)
		s.broadcaster.CloseAll()

		s.mu.Lock()
		owner := s.owner
		reachedLive := s.reachedLive
		startedAt := s.startedAt
		s.mu.Unlock()

		if owner != "" && reachedLive {
			ended := time.Now()
			s.history.AppendStreamHistory(catalog.StreamHistory{
				Username:          owner,
				PlaylistChannelID: s.playlistChannelID,
				StartedAt:         startedAt,
				EndedAt:           ended,
				DurationSeconds:   int64(ended.Sub(startedAt).Seconds()),
			})
		}
		close(s.dead)
	})
}

// Info is the public snapshot exposed by GET /api/streams, serialized as a
// bare array of these objects.
type Info struct {
	ChannelID   int       `json:"channelId"`
	ChannelName string    `json:"channelName"`
	SourceID    int       `json:"sourceId"`
	Username    string    `json:"username"`
	Clients     int       `json:"clients"`
	StartedAt   time.Time `json:"startedAt"`
	BytesIn     int64     `json:"bytesIn"`
	BytesOut    int64     `json:"bytesOut"`
	Bitrate     float64   `json:"bitrate"`
	Reconnects  int       `json:"reconnects"`
	UpstreamURL string    `json:"upstreamUrl"`
}

// Info returns a point-in-time snapshot of the Session's counters.
func (s *Session) Info(channelName string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ChannelID:   s.playlistChannelID,
		ChannelName: channelName,
		SourceID:    s.sourceID,
		Username:    s.owner,
		Clients:     s.broadcaster.Count(),
		StartedAt:   s.startedAt,
		BytesIn:     s.bytesIn,
		BytesOut:    s.bytesOut,
		Bitrate:     s.bitrate,
		Reconnects:  s.reconnects,
		UpstreamURL: s.url,
	}
}
