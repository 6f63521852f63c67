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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
	"github.com/lucasduport/iptv-gateway/internal/catalogstore"
	"github.com/lucasduport/iptv-gateway/internal/logging"
	"github.com/lucasduport/iptv-gateway/internal/xtream"
)

// queryAuth validates ?username=&password= query credentials, the way Xtream
// clients authenticate against player_api.php and xmltv.php.
func (s *Server) queryAuth(ctx *gin.Context) (*catalog.User, bool) {
	username := ctx.Query("username")
	password := ctx.Query("password")
	if username == "" || password == "" {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	user, err := s.Store.LookupUser(username)
	if err != nil {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	if !catalogstore.VerifyPassword(password, user.PasswordHash) {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return nil, false
	}
	if !user.Active || user.Expired(time.Now()) {
		ctx.AbortWithStatus(http.StatusForbidden)
		return nil, false
	}
	return user, true
}

// upstreamXtreamClient builds a client against the preferred xtream-kind
// Source's panel, carrying the Source's own upstream credentials.
func (s *Server) upstreamXtreamClient() (*xtream.Client, error) {
	src, err := s.Store.LookupXtreamSource()
	if err != nil {
		return nil, fmt.Errorf("httpapi: no xtream source configured: %w", err)
	}
	return xtream.New(src.Username, src.Password, src.URL)
}

// playerAPIHandler implements `GET /player_api.php`. The credential handshake
// (empty action) is answered locally from the Catalog Store's own user
// record, so downstream clients only ever see gateway credentials; every
// metadata action is passed through to the upstream panel.
func (s *Server) playerAPIHandler(ctx *gin.Context) {
	user, ok := s.queryAuth(ctx)
	if !ok {
		return
	}

	action := ctx.Query("action")
	if action == "" {
		ctx.JSON(http.StatusOK, loginResponse(user, ctx.Request.Host, time.Now()))
		return
	}

	client, err := s.upstreamXtreamClient()
	if err != nil {
		logging.Warn("httpapi: player_api action %q: %v", action, err)
		ctx.Status(http.StatusBadGateway)
		return
	}
	body, status, err := client.Action(action, ctx.Request.URL.Query())
	if err != nil {
		logging.Debug("httpapi: player_api action %q degraded: %v", action, err)
	}
	ctx.JSON(status, body)
}

// xmltvHandler implements `GET /xmltv.php`: EPG passthrough from the
// preferred xtream Source's panel.
func (s *Server) xmltvHandler(ctx *gin.Context) {
	if _, ok := s.queryAuth(ctx); !ok {
		return
	}

	client, err := s.upstreamXtreamClient()
	if err != nil {
		logging.Warn("httpapi: xmltv: %v", err)
		ctx.Status(http.StatusBadGateway)
		return
	}
	epg, err := client.GetXMLTV(ctx.Request.Context())
	if err != nil {
		logging.Warn("httpapi: xmltv fetch failed: %v", err)
		ctx.Status(http.StatusBadGateway)
		return
	}
	ctx.Data(http.StatusOK, "application/xml", epg)
}

// loginResponse synthesizes the player_api.php handshake blob from the
// gateway's own user record, the same shape real panels return: the client
// keeps talking to the gateway, never learning upstream credentials.
func loginResponse(user *catalog.User, host string, now time.Time) gin.H {
	expDate := ""
	if user.ExpiresAt != nil {
		expDate = fmt.Sprint(user.ExpiresAt.Unix())
	}
	status := "Active"
	if !user.Active {
		status = "Disabled"
	}
	return gin.H{
		"user_info": gin.H{
			"username":               user.Username,
			"auth":                   1,
			"status":                 status,
			"exp_date":               expDate,
			"is_trial":               "0",
			"max_connections":        fmt.Sprint(user.MaxConnections),
			"allowed_output_formats": []string{"ts"},
		},
		"server_info": gin.H{
			"url":           host,
			"protocol":      "http",
			"timestamp_now": now.Unix(),
			"time_now":      now.Format("2006-01-02 15:04:05"),
		},
	}
}
