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

import "github.com/gin-gonic/gin"

func (s *Server) routes(r *gin.Engine) {
	r.GET("/stream/:playlist_channel_id", s.streamHandler)
	// /live/... is the path real Xtream Codes panels use for this request;
	// /xtream/... is kept as an alias. Both reach the identical handler.
	r.GET("/xtream/:username/:password/:playlist_channel_id", s.xtreamLiveHandler)
	r.GET("/live/:username/:password/:playlist_channel_id", s.xtreamLiveHandler)
	r.GET("/movie/:username/:password/:playlist_channel_id", s.vodHandler)
	r.GET("/series/:username/:password/:playlist_channel_id", s.vodHandler)
	r.GET("/link/:token", s.resolveLinkHandler)
	r.GET("/player_api.php", s.playerAPIHandler)
	r.GET("/xmltv.php", s.xmltvHandler)

	admin := r.Group("/api")
	admin.Use(s.apiKeyAuth())
	admin.GET("/streams", s.listStreams)
	admin.DELETE("/streams/:playlist_channel_id", s.killStream)
	admin.POST("/links", s.createLink)
}
