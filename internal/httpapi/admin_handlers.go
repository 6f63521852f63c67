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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/stream"
)

// listStreams implements `GET /api/streams`: a bare JSON array snapshot of
// every live Session, derived straight from the Session Registry with no
// separate counter table.
func (s *Server) listStreams(ctx *gin.Context) {
	snapshot := s.Registry.Snapshot()
	infos := make([]stream.Info, 0, len(snapshot))
	for id, sess := range snapshot {
		sessImpl, ok := sess.(*stream.Session)
		if !ok {
			continue
		}
		channelName := ""
		if pc, err := s.Store.LookupPlaylistChannel(id); err == nil {
			channelName = pc.TVGName
		}
		infos = append(infos, sessImpl.Info(channelName))
	}
	ctx.JSON(http.StatusOK, infos)
}

// killStream implements `DELETE /api/streams/{channel_id}`: an admin-forced
// teardown of a live Session.
func (s *Server) killStream(ctx *gin.Context) {
	id, err := strconv.Atoi(ctx.Param("playlist_channel_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, apiResponse{Success: false, Error: "invalid channel id"})
		return
	}
	sess, ok := s.Registry.Get(id)
	if !ok {
		ctx.JSON(http.StatusNotFound, apiResponse{Success: false, Error: "no active session for channel"})
		return
	}
	sessImpl, ok := sess.(*stream.Session)
	if !ok {
		ctx.JSON(http.StatusInternalServerError, apiResponse{Success: false, Error: "unexpected session type"})
		return
	}
	sessImpl.Kill()
	ctx.JSON(http.StatusOK, apiResponse{Success: true, Message: "session terminated"})
}
