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

package catalog

import (
	"regexp"
	"strings"
)

// qualityPattern pairs a case-insensitive matcher with the Quality it yields.
// Order matters: the first match wins, so higher qualities are probed first.
type qualityPattern struct {
	re      *regexp.Regexp
	quality Quality
}

var qualityPatterns = []qualityPattern{
	{regexp.MustCompile(`(?i)\b(uhd|4k|2160p)\b`), QualityUHD},
	{regexp.MustCompile(`(?i)\b(fhd|1080p)\b`), QualityFHD},
	{regexp.MustCompile(`(?i)\b(hd|720p)\b`), QualityHD},
	{regexp.MustCompile(`(?i)\b(sd)\b`), QualitySD},
}

// defensiveQualityTokens strips any remaining quality marker that survives
// into the lowercased name, independent of whether step 2 already found one.
var defensiveQualityTokens = regexp.MustCompile(`(?i)\b(hd|fhd|uhd|4k|sd|hevc|h\.?265)\b`)

var nonAlphaNumeric = regexp.MustCompile(`[^a-z0-9]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ApplyCleanupRules runs the source's cleanup ruleset over a raw channel
// name in order, skipping disabled rules. Each rule is either a literal
// substring replace or a regex replace.
func ApplyCleanupRules(name string, rules []CleanupRule) string {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.IsRegex {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				continue
			}
			name = re.ReplaceAllString(name, rule.Replacement)
		} else {
			name = strings.ReplaceAll(name, rule.Pattern, rule.Replacement)
		}
	}
	return name
}

// ExtractQuality scans name case-insensitively for the first matching
// quality token (UHD/4K/2160p, then FHD/1080p, then HD/720p, then SD),
// returning the quality found and the name with that token removed and
// whitespace collapsed.
func ExtractQuality(name string) (Quality, string) {
	for _, qp := range qualityPatterns {
		loc := qp.re.FindStringIndex(name)
		if loc == nil {
			continue
		}
		stripped := name[:loc[0]] + " " + name[loc[1]:]
		stripped = strings.TrimSpace(whitespaceRun.ReplaceAllString(stripped, " "))
		return qp.quality, stripped
	}
	return QualityUnknown, name
}

// Normalize runs the full authoritative name-normalization algorithm:
// cleanup rules, quality extraction, then lowercase/strip to
// [a-z0-9]. Must be bit-identical across invocations for identical inputs
// and rulesets; two SourceChannels whose normalized names match are
// variants of one logical channel.
//
// Returns ("", quality) when the cleaned name normalizes to nothing; an
// empty normalized_name means the channel is kept but never deduplicated or
// used as a variant.
func Normalize(rawName string, rules []CleanupRule) (normalizedName string, quality Quality) {
	cleaned := ApplyCleanupRules(rawName, rules)
	quality, cleaned = ExtractQuality(cleaned)

	lowered := strings.ToLower(cleaned)
	lowered = defensiveQualityTokens.ReplaceAllString(lowered, "")
	normalizedName = nonAlphaNumeric.ReplaceAllString(lowered, "")
	return normalizedName, quality
}
