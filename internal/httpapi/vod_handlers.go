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
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// Strict request-header whitelist: some providers reject unexpected
// headers on VOD endpoints.
var vodHeaderWhitelist = []string{"Accept", "Accept-Language", "Range"}

// vodHandler implements `GET /movie/{username}/{password}/{channel_id}` and
// `GET /series/{username}/{password}/{channel_id}`. A plain request joins a
// shared Session like any live route, with the VOD grace period on
// teardown; a Range request opts out of session sharing and gets its own
// direct upstream fetch with the range headers forwarded.
func (s *Server) vodHandler(ctx *gin.Context) {
	user, ok := s.authenticateUser(ctx)
	if !ok {
		return
	}
	if user.Expired(time.Now()) {
		ctx.Status(http.StatusForbidden)
		return
	}

	id, err := parseChannelID(ctx.Param("playlist_channel_id"))
	if err != nil {
		ctx.Status(http.StatusNotFound)
		return
	}

	if ctx.GetHeader("Range") == "" {
		s.serveShared(ctx, id, user, true)
		return
	}

	pc, err := s.Store.LookupPlaylistChannel(id)
	if err != nil {
		ctx.Status(http.StatusNotFound)
		return
	}

	s.passthroughVOD(ctx, pc.URL)
}

// passthroughVOD forwards a single request directly to the upstream URL,
// carrying only the whitelisted headers, and relays upstream status,
// Content-Type, Content-Length, Accept-Ranges, and Content-Range verbatim.
func (s *Server) passthroughVOD(ctx *gin.Context, upstreamURL string) {
	req, err := http.NewRequestWithContext(ctx.Request.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		ctx.Status(http.StatusBadGateway)
		return
	}
	for _, h := range vodHeaderWhitelist {
		if v := ctx.Request.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := s.vodClient().Do(req)
	if err != nil {
		logging.Debug("httpapi: VOD upstream error: %v", err)
		ctx.Status(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for _, h := range []string{"Content-Type", "Content-Length", "Accept-Ranges", "Content-Range"} {
		if v := resp.Header.Get(h); v != "" {
			ctx.Writer.Header().Set(h, v)
		}
	}
	ctx.Status(resp.StatusCode)

	buf := make([]byte, 64*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := ctx.Writer.Write(buf[:n]); werr != nil {
				return
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				logging.Debug("httpapi: VOD read error: %v", rerr)
			}
			return
		}
	}
}

func (s *Server) vodClient() *http.Client {
	return s.Attacher.HTTPClient
}
