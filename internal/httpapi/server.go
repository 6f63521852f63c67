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

// Package httpapi wires the Catalog Store, Variant Resolver, and Session
// Registry into the gin HTTP surface clients and admins talk to: streaming
// endpoints for live channels and VOD passthrough, and a JSON admin API for
// observing and terminating active streams.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lucasduport/iptv-gateway/internal/catalogstore"
	"github.com/lucasduport/iptv-gateway/internal/logging"
	"github.com/lucasduport/iptv-gateway/internal/registry"
	"github.com/lucasduport/iptv-gateway/internal/stream"
	"github.com/lucasduport/iptv-gateway/internal/variant"
)

// Server wires the streaming core into a gin engine.
type Server struct {
	Store    *catalogstore.Store
	Resolver *variant.Resolver
	Registry *registry.Registry
	Attacher *stream.Attacher
	Port     int
}

// NewServer builds a Server from an already-open Catalog Store, sharing one
// Session Registry between the resolver's admission checks and the
// attacher's session lifecycle.
func NewServer(store *catalogstore.Store, port int) *Server {
	reg := registry.New()
	resolver := variant.New(store, reg)

	httpClient := &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}}

	attacher := &stream.Attacher{
		Resolver:   resolver,
		Registry:   reg,
		HTTPClient: httpClient,
		History:    store,
		Failures:   store,
		Settings: func() (int, int, int) {
			s := store.LoadSettings()
			return s.BufferSeconds, s.MaxReconnects, s.ReconnectDelayMS
		},
	}

	return &Server{
		Store:    store,
		Resolver: resolver,
		Registry: reg,
		Attacher: attacher,
		Port:     port,
	}
}

// Run builds the gin engine and blocks serving it.
func (s *Server) Run() error {
	router := gin.Default()
	router.Use(cors.Default())
	s.routes(router)

	logging.Info("httpapi: server listening on :%d", s.Port)
	return router.Run(fmt.Sprintf(":%d", s.Port))
}
