// Package recap recognizes production-code announcements ("S01E05: synopsis")
// and defines the episode record persisted for each one.
package recap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// announcement is anchored at the start and case-sensitive on the S/E markers.
// The remainder is split by hand so digit runs never backtrack into the synopsis.
var announcement = regexp.MustCompile(`^S(\d+)E(\d+)(.*)$`)

var codeOnly = regexp.MustCompile(`^S(\d+)E(\d+)$`)

// Recap is the structured result of a matching announcement.
type Recap struct {
	Season   int
	Episode  int
	Code     string // source-preserving, e.g. "S01E05"
	Synopsis string
}

// Line renders the recap line reposted into the canonical channel.
func (r Recap) Line() string { return r.Code + ": " + r.Synopsis }

// Parse matches text against the announcement pattern. ok is false when the
// text is not an announcement; that is not an error.
func Parse(text string) (Recap, bool) {
	m := announcement.FindStringSubmatch(text)
	if m == nil {
		return Recap{}, false
	}
	season, ok := number(m[1])
	if !ok {
		return Recap{}, false
	}
	episode, ok := number(m[2])
	if !ok {
		return Recap{}, false
	}
	rest := strings.TrimPrefix(m[3], ":")
	rest = strings.TrimPrefix(rest, " ")
	synopsis := strings.TrimSpace(rest)
	if synopsis == "" {
		return Recap{}, false
	}
	return Recap{
		Season:   season,
		Episode:  episode,
		Code:     "S" + m[1] + "E" + m[2],
		Synopsis: synopsis,
	}, true
}

// ParseCode extracts season and episode from a bare production code such as
// "S01E05" or "S1E5".
func ParseCode(code string) (season, episode int, ok bool) {
	m := codeOnly.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return 0, 0, false
	}
	s, ok := number(m[1])
	if !ok {
		return 0, 0, false
	}
	e, ok := number(m[2])
	if !ok {
		return 0, 0, false
	}
	return s, e, true
}

// ParseSeason parses a season number given on its own, as in "season 3".
func ParseSeason(s string) (int, bool) { return number(s) }

// number parses a season or episode number. Values must fit the ledger's
// 32-bit integer columns.
func number(digits string) (int, bool) {
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// Code builds the unpadded production code for season and episode.
func Code(season, episode int) string { return fmt.Sprintf("S%dE%d", season, episode) }
