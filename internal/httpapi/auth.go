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
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/catalogstore"
	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// parseChannelID extracts a PlaylistChannel id from a path segment, tolerant
// of the optional `.ts`/`.mkv` extension clients append on the movie/series
// routes.
func parseChannelID(raw string) (int, error) {
	if ext := strings.LastIndexByte(raw, '.'); ext != -1 {
		raw = raw[:ext]
	}
	return strconv.Atoi(raw)
}

var internalAPIKey string

func init() {
	internalAPIKey = os.Getenv("INTERNAL_API_KEY")
}

// apiKeyAuth guards the admin JSON API behind a shared-secret header.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if internalAPIKey == "" {
			ctx.Next()
			return
		}
		if ctx.GetHeader("X-API-Key") != internalAPIKey {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, apiResponse{Success: false, Error: "invalid API key"})
			return
		}
		ctx.Next()
	}
}

// authenticateUser resolves and validates the username/password path
// parameters against the Catalog Store.
func (s *Server) authenticateUser(ctx *gin.Context) (*catalog.User, bool) {
	username := ctx.Param("username")
	password := ctx.Param("password")

	user, err := s.Store.LookupUser(username)
	if err != nil {
		logging.Debug("httpapi: lookup failed for user %s: %v", username, err)
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	if !catalogstore.VerifyPassword(password, user.PasswordHash) {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	if !user.Active {
		ctx.AbortWithStatus(http.StatusForbidden)
		return nil, false
	}
	return user, true
}

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
