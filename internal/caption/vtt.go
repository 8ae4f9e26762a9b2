package caption

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	vttTagRe       = regexp.MustCompile(`<[^>]+>`)
	vttAlignRe     = regexp.MustCompile(`align:start position:\d+%`)
	vttTimestampRe = regexp.MustCompile(`(?:(\d{1,2}):)?(\d{2}):(\d{2}[.,]\d{3})\s*-->\s*(?:(\d{1,2}):)?(\d{2}):(\d{2}[.,]\d{3})`)
)

// cleanVTTText strips inline formatting tags and collapses whitespace
// (spec §4.6 "strip inline tags, collapse whitespace").
func cleanVTTText(text string) string {
	text = vttTagRe.ReplaceAllString(text, "")
	text = vttAlignRe.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func parseVTTTimestamp(ts string) float64 {
	ts = strings.ReplaceAll(strings.TrimSpace(ts), ",", ".")
	parts := strings.Split(ts, ":")
	switch len(parts) {
	case 3:
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		s, _ := strconv.ParseFloat(parts[2], 64)
		return float64(h)*3600 + float64(m)*60 + s
	case 2:
		m, _ := strconv.Atoi(parts[0])
		s, _ := strconv.ParseFloat(parts[1], 64)
		return float64(m)*60 + s
	default:
		s, _ := strconv.ParseFloat(parts[0], 64)
		return s
	}
}

// ParseVTT parses WebVTT caption content into normalized, merged
// segments (spec §4.6 VTT parser).
func ParseVTT(content string) []Segment {
	lines := strings.Split(content, "\n")

	var raw []Segment
	var curStart, curEnd float64
	haveStart := false
	var curText []string

	flush := func() {
		if haveStart && len(curText) > 0 {
			text := cleanVTTText(strings.Join(curText, " "))
			if text != "" {
				raw = append(raw, Segment{Start: curStart, End: curEnd, Text: text})
			}
		}
		curText = nil
		haveStart = false
	}

	started := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !started {
			if strings.HasPrefix(trimmed, "WEBVTT") || strings.HasPrefix(trimmed, "Kind:") ||
				strings.HasPrefix(trimmed, "Language:") || trimmed == "" {
				continue
			}
			started = true
		}

		if trimmed == "" || isAllDigits(trimmed) || strings.HasPrefix(trimmed, "NOTE") {
			flush()
			continue
		}

		if m := vttTimestampRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			startStr := joinTimestamp(m[1], m[2], m[3])
			endStr := joinTimestamp(m[4], m[5], m[6])
			curStart = parseVTTTimestamp(startStr)
			curEnd = parseVTTTimestamp(endStr)
			haveStart = true
			continue
		}

		if haveStart {
			curText = append(curText, trimmed)
		}
	}
	flush()

	return mergeOverlappingSegments(raw)
}

func joinTimestamp(hour, minSec, frac string) string {
	if hour == "" {
		return minSec + ":" + frac
	}
	return hour + ":" + minSec + ":" + frac
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mergeOverlappingSegments merges cues whose start times differ by
// less than 0.5s and whose text is a prefix/superset of the other
// (spec §4.6). YouTube's VTT format reveals caption text
// incrementally across overlapping cues; this collapses them into
// clean, non-overlapping segments.
func mergeOverlappingSegments(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}
	sorted := append([]Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var merged []Segment
	current := sorted[0]
	for _, seg := range sorted[1:] {
		timeOverlap := abs(seg.Start-current.Start) < 0.5
		curLower := strings.ToLower(current.Text)
		newLower := strings.ToLower(seg.Text)
		textOverlap := hasPrefixOverlap(newLower, curLower) || hasPrefixOverlap(curLower, newLower) ||
			strings.Contains(curLower, newLower) || strings.Contains(newLower, curLower)

		if timeOverlap && textOverlap {
			if len(seg.Text) > len(current.Text) {
				current.Text = seg.Text
			}
			if seg.End > current.End {
				current.End = seg.End
			}
			continue
		}
		merged = append(merged, current)
		current = seg
	}
	merged = append(merged, current)
	return merged
}

func hasPrefixOverlap(a, b string) bool {
	prefixLen := 20
	if len(b) < prefixLen {
		prefixLen = len(b)
	}
	return prefixLen > 0 && strings.HasPrefix(a, b[:prefixLen])
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
