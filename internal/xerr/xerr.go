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

// Package xerr defines the closed set of error kinds the streaming core
// distinguishes, and a call-site annotation helper (Annotate). No package in
// the gateway calls Annotate at present.
package xerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Sentinel kinds the core distinguishes. Surface strings are not contractual;
// callers should match with errors.Is.
var (
	ErrChannelNotFound       = errors.New("channel not found")
	ErrUserInvalid           = errors.New("invalid user credentials")
	ErrAccountExpired        = errors.New("account expired")
	ErrUserAtCapacity        = errors.New("user at connection capacity")
	ErrSourceAtCapacity      = errors.New("source at stream capacity")
	ErrUpstreamUnreachable   = errors.New("upstream unreachable")
	ErrUpstreamStalled       = errors.New("upstream stalled")
	ErrUpstreamCancelled     = errors.New("upstream cancelled")
	ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")
)

// UpstreamStatus is a variant-level failure carrying the HTTP status the
// upstream source returned.
type UpstreamStatus struct {
	Code int
}

func (e *UpstreamStatus) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// Annotate wraps err with the caller's file:line. Returns nil if err is nil.
func Annotate(err error) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return err
	}
	return fmt.Errorf("%s:%d: %w", filepath.Base(file), line, err)
}
