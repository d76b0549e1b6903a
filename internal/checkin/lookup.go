package checkin

import "strings"

// Match returns the records whose name, email or id contains query,
// compared case-insensitively. An empty query matches nothing.
func Match(records []Record, query string) []Record {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	var out []Record
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Name), needle) ||
			strings.Contains(strings.ToLower(rec.Email), needle) ||
			strings.Contains(strings.ToLower(rec.ID), needle) {
			out = append(out, rec)
		}
	}
	return out
}

// Resolve narrows a manual query to a single record. An exact id or email
// match wins over substring matches; otherwise exactly one substring match is
// required. The returned count is the number of candidates considered.
func Resolve(records []Record, query string) (Record, int, bool) {
	matches := Match(records, query)
	if len(matches) == 1 {
		return matches[0], 1, true
	}

	needle := strings.TrimSpace(query)
	for _, rec := range matches {
		if strings.EqualFold(rec.ID, needle) || strings.EqualFold(rec.Email, needle) {
			return rec, len(matches), true
		}
	}
	return Record{}, len(matches), false
}

// Counters summarizes check-in progress for an event.
type Counters struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checked_in"`
	NoShow    int `json:"no_show"`
	Remaining int `json:"remaining"`
}

// Count derives counters from the attendee records.
func Count(records []Record) Counters {
	c := Counters{Total: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case StatusCheckedIn:
			c.CheckedIn++
		case StatusNoShow:
			c.NoShow++
		default:
			c.Remaining++
		}
	}
	return c
}
