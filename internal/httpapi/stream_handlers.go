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

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/catalogstore"
	"github.com/lucasduport/iptv-gateway/internal/logging"
	"github.com/lucasduport/iptv-gateway/internal/xerr"
)

// streamHandler serves `GET /stream/{channel_id}`: an
// unauthenticated proxy stream, optionally accounted against a user given
// via query credentials.
func (s *Server) streamHandler(ctx *gin.Context) {
	id, err := strconv.Atoi(ctx.Param("playlist_channel_id"))
	if err != nil {
		ctx.Status(http.StatusNotFound)
		return
	}

	var user *catalog.User
	if username := ctx.Query("username"); username != "" {
		u, err := s.Store.LookupUser(username)
		if err != nil {
			ctx.Status(http.StatusUnauthorized)
			return
		}
		if !verifyQueryPassword(ctx.Query("password"), u.PasswordHash) {
			ctx.Status(http.StatusUnauthorized)
			return
		}
		user = u
	}

	s.serveLive(ctx, id, user)
}

// xtreamLiveHandler implements the Xtream-style authenticated live route
// `GET /live/{username}/{password}/{channel_id}`.
func (s *Server) xtreamLiveHandler(ctx *gin.Context) {
	user, ok := s.authenticateUser(ctx)
	if !ok {
		return
	}
	id, err := strconv.Atoi(ctx.Param("playlist_channel_id"))
	if err != nil {
		ctx.Status(http.StatusNotFound)
		return
	}
	s.serveLive(ctx, id, user)
}

func (s *Server) serveLive(ctx *gin.Context, playlistChannelID int, user *catalog.User) {
	s.serveShared(ctx, playlistChannelID, user, false)
}

// serveShared attaches the response to a (possibly newly created) shared
// Session and relays its chunk stream until the client or the Session goes
// away.
func (s *Server) serveShared(ctx *gin.Context, playlistChannelID int, user *catalog.User, isVOD bool) {
	attachment, err := s.Attacher.Attach(ctx.Request.Context(), playlistChannelID, user, isVOD)
	if err != nil {
		ctx.Status(statusForError(err))
		return
	}

	w := ctx.Writer
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	defer attachment.Detach()

	if len(attachment.Bridge) > 0 {
		if _, err := w.Write(attachment.Bridge); err != nil {
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	for {
		select {
		case <-ctx.Request.Context().Done():
			return
		case <-attachment.Session.Dead():
			// Session reached Dead (max reconnects exceeded, or admin
			// kill): end the response cleanly so the client sees a normal
			// stream end rather than hanging on a queue that will never
			// receive another chunk.
			return
		case chunk, ok := <-attachment.Chunks:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				logging.Debug("httpapi: client write error: %v", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// statusForError maps attachment failures to HTTP statuses.
// ErrSourceAtCapacity has no distinct status of its own here: Attacher.Attach
// (internal/stream/attach.go) only ever returns it as the loop's lastErr once
// every variant, including every capacity-full one, has been tried and
// rejected, so by the time it reaches this mapping it means "all variants
// failed," a 502 like any other. It falls through to the default case.
func statusForError(err error) int {
	switch {
	case errors.Is(err, xerr.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerr.ErrUserInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, xerr.ErrAccountExpired):
		return http.StatusForbidden
	case errors.Is(err, xerr.ErrUserAtCapacity):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func verifyQueryPassword(plain, stored string) bool {
	if plain == "" {
		return false
	}
	return catalogstore.VerifyPassword(plain, stored)
}
