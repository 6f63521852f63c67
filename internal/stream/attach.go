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
	"net/http"
	"time"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/logging"
	"github.com/lucasduport/iptv-gateway/internal/registry"
	"github.com/lucasduport/iptv-gateway/internal/variant"
	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

// connectTimeout bounds the "first byte received from upstream" milestone a
// client's HTTP request waits on; it does not bound the Session's
// subsequent lifetime.
const connectTimeout = 10 * time.Second

// FailureRecorder is the slice of the Catalog Store the Attacher needs to
// record a failed upstream attempt.
type FailureRecorder interface {
	RecordFailedStream(playlistChannelID int, url, lastErr string, status int)
}

// Attachment is handed back to the HTTP layer once a client has been bound
// to a (possibly newly created) Session.
type Attachment struct {
	Session     *Session
	ChannelName string
	SubID       uint64
	Chunks      <-chan []byte
	Bridge      []byte
	Detach      func()
}

// Attacher implements the Client Attachment operation: resolve
// variants, admit, join an existing live Session or create one by trying
// variants one at a time in priority order, and subscribe the caller to it.
type Attacher struct {
	Resolver   *variant.Resolver
	Registry   *registry.Registry
	Settings   func() (bufferSeconds, maxReconnects, reconnectDelayMS int)
	HTTPClient *http.Client
	History    HistoryWriter
	Failures   FailureRecorder
}

// Attach binds one client to a channel end to end. user may be nil for
// unauthenticated deployments that skip user admission. isVOD marks the
// Session as single-program: its last-client teardown waits a short grace
// period instead of closing immediately, absorbing player reconnect storms
// around seeks.
func (a *Attacher) Attach(ctx context.Context, playlistChannelID int, user *catalog.User, isVOD bool) (*Attachment, error) {
	now := time.Now()
	if user != nil {
		if err := variant.CheckUserAdmission(user, now, a.Registry); err != nil {
			return nil, err
		}
	}

	pc, variants, err := a.Resolver.ResolveVariants(playlistChannelID)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, xerr.ErrChannelNotFound
	}

	if existing, ok := a.Registry.Get(playlistChannelID); ok {
		sess, ok := existing.(*Session)
		if ok {
			return a.join(sess, pc.TVGName), nil
		}
	}

	var lastErr error
	for _, v := range variants {
		if err := variant.CheckSourceAdmission(v, playlistChannelID, a.Registry); err != nil {
			lastErr = err
			continue
		}

		owner := ""
		if user != nil {
			owner = user.Username
		}
		bufferSeconds, maxReconnects, reconnectDelayMS := a.Settings()
		cfg := Config{
			BufferSeconds:    bufferSeconds,
			MaxReconnects:    maxReconnects,
			ReconnectDelayMS: reconnectDelayMS,
		}

		sess, created, err := a.Registry.GetOrCreate(playlistChannelID, func() (registry.Session, error) {
			s := NewSession(playlistChannelID, v.SourceID, owner, cfg, a.HTTPClient, a.Registry, a.History, isVOD)
			connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			if startErr := s.Start(connectCtx, v.URL); startErr != nil {
				return nil, startErr
			}
			return s, nil
		})
		if err != nil {
			lastErr = err
			var status *xerr.UpstreamStatus
			code := 0
			if errors.As(err, &status) {
				code = status.Code
			}
			a.Failures.RecordFailedStream(playlistChannelID, v.URL, err.Error(), code)
			logging.Warn("stream: variant %s for channel %d failed: %v", v.URL, playlistChannelID, err)
			continue
		}
		if !created {
			if runningSess, ok := sess.(*Session); ok {
				return a.join(runningSess, pc.TVGName), nil
			}
		}
		runningSess, ok := sess.(*Session)
		if !ok {
			lastErr = xerr.ErrUpstreamUnreachable
			continue
		}
		return a.join(runningSess, pc.TVGName), nil
	}

	if lastErr == nil {
		lastErr = xerr.ErrUpstreamUnreachable
	}
	return nil, lastErr
}

func (a *Attacher) join(sess *Session, channelName string) *Attachment {
	id, chunks, bridge, detach := sess.AttachClient()
	return &Attachment{
		Session:     sess,
		ChannelName: channelName,
		SubID:       id,
		Chunks:      chunks,
		Bridge:      bridge,
		Detach:      detach,
	}
}
