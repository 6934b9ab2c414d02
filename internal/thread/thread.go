// Package thread implements the context-thread mini-language: the single
// `key=value;key=value` string carried in additional_context across turns
// and across agents within a turn. Keys are agent-specific and opaque to
// the orchestrator; this package is the only place that understands the
// encoding. Parsing is permissive by contract: it never fails, unknown
// keys survive a round trip verbatim, and malformed segments are dropped.
package thread

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"cinechat/internal/types"
)

// Well-known keys. Producers beyond this package must use these constants
// so the typed accessors stay in sync with the wire format.
const (
	KeyYear       = "year"
	KeyGenreIDs   = "genreIds"
	KeyPage       = "page"
	KeyPersonID   = "tmdbPersonId"
	KeyRefMovieID = "refTmdbMovieId"
	KeyCandidates = "candidates"
)

// Thread is the decoded key=value state. Insertion order is preserved so a
// parse→serialize round trip keeps the producer's layout stable.
type Thread struct {
	keys   []string
	values map[string]string
}

// New returns an empty thread.
func New() *Thread {
	return &Thread{values: make(map[string]string)}
}

// Parse decodes a raw thread string. It never fails: an empty input yields
// an empty thread, segments without '=' are dropped, later duplicates of a
// key overwrite earlier ones. Separators inside brackets or quotes (the
// candidates JSON payload) do not split segments.
func Parse(raw string) *Thread {
	t := New()
	for _, seg := range splitSegments(raw) {
		eq := strings.IndexByte(seg, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(seg[:eq])
		if key == "" {
			continue
		}
		t.Set(key, strings.TrimSpace(seg[eq+1:]))
	}
	return t
}

// splitSegments splits on ';' while tracking bracket depth and string
// state, so a JSON array value containing ';' stays in one segment.
// Unbalanced input degrades to best effort; the lazy candidates decode is
// the component that decides whether the payload is usable.
func splitSegments(s string) []string {
	var segs []string
	var depth int
	var inString, escape bool
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				segs = append(segs, s[start:i])
				start = i + 1
			}
		}
	}
	if start <= len(s) {
		segs = append(segs, s[start:])
	}
	return segs
}

// Serialize encodes the thread back to its wire form. An empty thread
// serializes to "".
func (t *Thread) Serialize() string {
	if t == nil || len(t.keys) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		parts = append(parts, k+"="+t.values[k])
	}
	return strings.Join(parts, ";")
}

// Get returns the raw value for key.
func (t *Thread) Get(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t.values[key]
	return v, ok
}

// Set stores a raw value, preserving first-insertion order.
func (t *Thread) Set(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Delete removes a key if present.
func (t *Thread) Delete(key string) {
	if t == nil {
		return
	}
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored keys.
func (t *Thread) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// intValue parses a stored int key, reporting presence of a valid value.
func (t *Thread) intValue(key string) (int, bool) {
	raw, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Year returns the selected release year, if threaded.
func (t *Thread) Year() (int, bool) { return t.intValue(KeyYear) }

// SetYear threads the selected release year.
func (t *Thread) SetYear(year int) { t.Set(KeyYear, strconv.Itoa(year)) }

// Page returns the current page, defaulting to 1 when absent or malformed.
func (t *Thread) Page() int {
	if n, ok := t.intValue(KeyPage); ok && n > 0 {
		return n
	}
	return 1
}

// SetPage threads the current page.
func (t *Thread) SetPage(page int) { t.Set(KeyPage, strconv.Itoa(page)) }

// GenreIDs returns the threaded genre identifiers. Malformed entries are
// skipped, never fatal.
func (t *Thread) GenreIDs() []int {
	raw, ok := t.Get(KeyGenreIDs)
	if !ok || raw == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// SetGenreIDs threads the resolved genre identifiers.
func (t *Thread) SetGenreIDs(ids []int) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	t.Set(KeyGenreIDs, strings.Join(parts, ","))
}

// PersonID returns the resolved person identifier, if threaded.
func (t *Thread) PersonID() (int, bool) { return t.intValue(KeyPersonID) }

// SetPersonID threads a resolved person identifier.
func (t *Thread) SetPersonID(id int) { t.Set(KeyPersonID, strconv.Itoa(id)) }

// RefMovieID returns the resolved reference movie identifier, if threaded.
func (t *Thread) RefMovieID() (int, bool) { return t.intValue(KeyRefMovieID) }

// SetRefMovieID threads a resolved reference movie identifier.
func (t *Thread) SetRefMovieID(id int) { t.Set(KeyRefMovieID, strconv.Itoa(id)) }

// Candidates lazily decodes the pending disambiguation list. Absent,
// malformed or unbalanced JSON is treated as no candidates; it is never an
// error for consumers that do not expect the key.
func (t *Thread) Candidates() []types.Candidate {
	raw, ok := t.Get(KeyCandidates)
	if !ok || raw == "" {
		return nil
	}
	var cands []types.Candidate
	if err := json.Unmarshal([]byte(raw), &cands); err != nil {
		return nil
	}
	if len(cands) > types.MaxCandidates {
		cands = cands[:types.MaxCandidates]
	}
	return cands
}

// SetCandidates threads a disambiguation list, capped at MaxCandidates.
// An empty list removes the key.
func (t *Thread) SetCandidates(cands []types.Candidate) {
	if len(cands) == 0 {
		t.Delete(KeyCandidates)
		return
	}
	if len(cands) > types.MaxCandidates {
		cands = cands[:types.MaxCandidates]
	}
	data, err := json.Marshal(cands)
	if err != nil {
		// Candidate is a plain struct; marshal cannot realistically fail.
		return
	}
	t.Set(KeyCandidates, string(data))
}

// ClearIdentifiers drops every resolved-entity key. Used when entity
// resolution comes up empty so stale identifiers never leak into the next
// step.
func (t *Thread) ClearIdentifiers() {
	t.Delete(KeyPersonID)
	t.Delete(KeyRefMovieID)
	t.Delete(KeyCandidates)
}
