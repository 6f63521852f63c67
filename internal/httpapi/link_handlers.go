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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
)

const defaultLinkTTL = time.Hour

// createLinkRequest is the admin API's request body for minting a temporary
// link.
type createLinkRequest struct {
	Username          string `json:"username" binding:"required"`
	PlaylistChannelID int    `json:"playlist_channel_id" binding:"required"`
	TTLSeconds        int    `json:"ttl_seconds"`
}

// createLink implements `POST /api/links`: mints a short-lived,
// credential-free token naming one channel, bound to username for
// per-user admission accounting same as a normal authenticated request.
func (s *Server) createLink(ctx *gin.Context) {
	var req createLinkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, apiResponse{Success: false, Error: err.Error()})
		return
	}

	ttl := defaultLinkTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	expiresAt := time.Now().Add(ttl)

	token := uuid.New().String()
	if err := s.Store.CreateTemporaryLink(token, req.Username, req.PlaylistChannelID, expiresAt); err != nil {
		ctx.JSON(http.StatusInternalServerError, apiResponse{Success: false, Error: "failed to create link"})
		return
	}

	ctx.JSON(http.StatusOK, apiResponse{Success: true, Data: gin.H{
		"token":      token,
		"expires_at": expiresAt,
	}})
}

// resolveLinkHandler implements `GET /link/{token}`: an unauthenticated
// stream route for a previously minted temporary link, reusing the same
// attach/admission path as every other live route.
func (s *Server) resolveLinkHandler(ctx *gin.Context) {
	token := ctx.Param("token")

	link, err := s.Store.GetTemporaryLink(token)
	if err != nil {
		ctx.Status(http.StatusNotFound)
		return
	}

	var user *catalog.User
	if link.Username != "" {
		u, err := s.Store.LookupUser(link.Username)
		if err == nil {
			user = u
		}
	}

	s.serveLive(ctx, link.PlaylistChannelID, user)
}
