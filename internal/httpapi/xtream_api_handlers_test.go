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
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/catalog"
)

func TestLoginResponseActiveUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(30 * 24 * time.Hour)
	user := &catalog.User{
		Username:       "alice",
		MaxConnections: 2,
		ExpiresAt:      &expires,
		Active:         true,
	}

	resp := loginResponse(user, "gateway.local:8080", now)

	userInfo, ok := resp["user_info"].(gin.H)
	if !ok {
		t.Fatal("missing user_info")
	}
	if userInfo["username"] != "alice" {
		t.Errorf("username = %v", userInfo["username"])
	}
	if userInfo["status"] != "Active" {
		t.Errorf("status = %v", userInfo["status"])
	}
	if userInfo["exp_date"] != fmt.Sprint(expires.Unix()) {
		t.Errorf("exp_date = %v", userInfo["exp_date"])
	}
	if userInfo["max_connections"] != "2" {
		t.Errorf("max_connections = %v", userInfo["max_connections"])
	}

	serverInfo, ok := resp["server_info"].(gin.H)
	if !ok {
		t.Fatal("missing server_info")
	}
	if serverInfo["url"] != "gateway.local:8080" {
		t.Errorf("url = %v", serverInfo["url"])
	}
	if serverInfo["timestamp_now"] != now.Unix() {
		t.Errorf("timestamp_now = %v", serverInfo["timestamp_now"])
	}
}

func TestLoginResponseNoExpiry(t *testing.T) {
	user := &catalog.User{Username: "bob", Active: true}
	resp := loginResponse(user, "host", time.Now())
	userInfo := resp["user_info"].(gin.H)
	if userInfo["exp_date"] != "" {
		t.Errorf("exp_date should be empty for unexpiring accounts, got %v", userInfo["exp_date"])
	}
}

func TestLoginResponseDisabledUser(t *testing.T) {
	user := &catalog.User{Username: "carol", Active: false}
	resp := loginResponse(user, "host", time.Now())
	userInfo := resp["user_info"].(gin.H)
	if userInfo["status"] != "Disabled" {
		t.Errorf("status = %v", userInfo["status"])
	}
}
