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

// Package xtream is a thin Xtream Codes player_api.php client used by
// internal/httpapi to pass metadata actions and xmltv.php EPG requests
// through to an Xtream-kind Source's panel.
// Upstream Xtream panels are notoriously sloppy about well-formed JSON, so
// Action degrades to a best-effort sanitizing pass rather than failing the
// whole passthrough request over one malformed response.
package xtream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"github.com/lucasduport/iptv-gateway/internal/logging"
)

// API endpoint constants.
const (
	ActionLiveCategories   = "get_live_categories"
	ActionLiveStreams      = "get_live_streams"
	ActionVodCategories    = "get_vod_categories"
	ActionVodStreams       = "get_vod_streams"
	ActionVodInfo          = "get_vod_info"
	ActionSeriesCategories = "get_series_categories"
	ActionSeries           = "get_series"
	ActionSeriesInfo       = "get_series_info"
	ActionShortEPG         = "get_short_epg"
	ActionSimpleDataTable  = "get_simple_data_table"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; M3UManager/1.0)"

// Client is a raw player_api.php client for one Xtream-kind Source.
type Client struct {
	Username  string
	Password  string
	BaseURL   string
	UserAgent string
	client    *http.Client
}

// New validates baseURL and constructs a Client against it.
func New(username, password, baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("xtream: invalid base URL: %w", err)
	}
	return &Client{
		Username:  username,
		Password:  password,
		BaseURL:   baseURL,
		UserAgent: defaultUserAgent,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
	}, nil
}

// Action executes a player_api.php action, making up to 5 attempts in total
// on transient failures. When the body cannot be decoded even after
// sanitizing and array salvage, it returns an empty-but-valid structure for
// the action together with the decode error.
func (c *Client) Action(action string, extra url.Values) (interface{}, int, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/player_api.php")
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	params := url.Values{}
	params.Set("username", c.Username)
	params.Set("password", c.Password)
	if strings.TrimSpace(action) != "" {
		params.Set("action", action)
	}
	for k, vs := range extra {
		if k == "username" || k == "password" || k == "action" {
			continue
		}
		for _, v := range vs {
			if v != "" {
				params.Add(k, v)
			}
		}
	}
	u.RawQuery = params.Encode()
	logging.Debug("xtream: action=%s request=%s", action, u.String())

	var lastErr error
	var resp *http.Response
	var body []byte

	for i := 0; i < 5; i++ {
		req, rerr := http.NewRequest(http.MethodGet, u.String(), nil)
		if rerr != nil {
			lastErr = rerr
			continue
		}
		req.Header.Set("User-Agent", c.UserAgent)
		req.Header.Set("Accept", "application/json, text/plain, */*")

		resp, err = c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			body, err = io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			resp.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}
			break
		}
		lastErr = fmt.Errorf("xtream: HTTP status %d", resp.StatusCode)
		resp.Body.Close()
	}

	if resp == nil || resp.StatusCode != http.StatusOK || len(body) == 0 {
		logging.Warn("xtream: action=%s failed after retries: %v", action, lastErr)
		return fallbackForAction(action), http.StatusBadGateway, lastErr
	}

	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '<':
		return fallbackForAction(action), http.StatusOK, nil
	case bytes.Equal(trimmed, []byte("{}")):
		return map[string]interface{}{}, http.StatusOK, nil
	case bytes.Equal(trimmed, []byte("[]")):
		return []interface{}{}, http.StatusOK, nil
	}

	var result interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		logging.Debug("xtream: action=%s JSON decode failed, retrying with sanitized body: %v", action, err)
		sanitized := sanitizeUnicodeJSON(trimmed)
		dec = json.NewDecoder(bytes.NewReader(sanitized))
		dec.UseNumber()
		if err := dec.Decode(&result); err != nil {
			if salvaged := salvageArrayElements(sanitized); salvaged != nil {
				logging.Warn("xtream: action=%s: full decode failed, salvaged %d of the array's elements individually", action, len(salvaged))
				return salvaged, http.StatusOK, nil
			}
			return fallbackForAction(action), http.StatusOK, err
		}
	}
	return result, http.StatusOK, nil
}

// salvageArrayElements is the last resort before falling back to an empty
// result entirely: when a top-level JSON array still won't decode as a whole
// even after sanitizeUnicodeJSON (one malformed element can poison the whole
// document for encoding/json), jsonparser.ArrayEach walks the array without
// requiring the full document to be well-formed, keeping every element that
// parses on its own and dropping only the ones that don't. Returns nil if
// the body isn't a top-level array.
func salvageArrayElements(body []byte) []interface{} {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var out []interface{}
	_, err := jsonparser.ArrayEach(trimmed, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		var elem map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		if dec.Decode(&elem) == nil {
			out = append(out, elem)
		}
	})
	if err != nil || len(out) == 0 {
		return nil
	}
	return out
}

// GetXMLTV retrieves the EPG data in XMLTV format, used for passthrough by
// the httpapi layer's xmltv.php route.
func (c *Client) GetXMLTV(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/xmltv.php")
	if err != nil {
		return nil, fmt.Errorf("xtream: invalid xmltv URL: %w", err)
	}
	params := url.Values{}
	params.Set("username", c.Username)
	params.Set("password", c.Password)
	u.RawQuery = params.Encode()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtream: xmltv request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtream: xmltv unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 50<<20))
}

func fallbackForAction(action string) interface{} {
	switch action {
	case ActionLiveCategories, ActionVodCategories, ActionSeriesCategories:
		return []map[string]interface{}{{"category_id": "1", "category_name": "Default Category", "parent_id": "0"}}
	case ActionLiveStreams, ActionVodStreams, ActionSeries:
		return []interface{}{}
	case ActionVodInfo, ActionSeriesInfo, ActionShortEPG, ActionSimpleDataTable:
		return map[string]interface{}{}
	default:
		return map[string]interface{}{}
	}
}

// sanitizeUnicodeJSON runs a best-effort cleanup pass over a malformed
// Xtream JSON response: strips control characters, normalizes curly quotes,
// fixes trailing-comma syntax errors, and balances brackets/braces.
func sanitizeUnicodeJSON(input []byte) []byte {
	if len(input) == 0 {
		return input
	}
	s := string(input)
	s = removeProblematicCharacters(s)
	s = fixJSONSyntaxErrors(s)
	s = normalizeQuotes(s)
	s = fixBrokenUTF8(s)
	s = balanceBracketsAndBraces(s)
	return []byte(s)
}

func removeProblematicCharacters(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\\/", "/")
	for i := 0; i < 32; i++ {
		if i != 9 && i != 10 && i != 13 {
			s = strings.ReplaceAll(s, string(rune(i)), "")
		}
	}
	return s
}

func fixJSONSyntaxErrors(s string) string {
	s = strings.ReplaceAll(s, ",]", "]")
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ",,", ",")
	return s
}

func normalizeQuotes(s string) string {
	replacements := map[string]string{"“": "\"", "”": "\"", "‘": "'", "’": "'", "«": "\"", "»": "\""}
	for from, to := range replacements {
		s = strings.ReplaceAll(s, from, to)
	}
	return s
}

func balanceBracketsAndBraces(s string) string {
	if diff := strings.Count(s, "[") - strings.Count(s, "]"); diff > 0 {
		s += strings.Repeat("]", diff)
	}
	if diff := strings.Count(s, "{") - strings.Count(s, "}"); diff > 0 {
		s += strings.Repeat("}", diff)
	}
	return s
}

func fixBrokenUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return string([]rune(s))
}
