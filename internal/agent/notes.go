package agent

import (
	"fmt"
	"strconv"
	"strings"

	"cinechat/internal/merge"
	"cinechat/internal/thread"
	"cinechat/internal/types"
)

// movieBatch is the tool-result shape of the movie-returning tools: the
// merged batch plus a ready-made context value and pre-built attachments
// the model copies into its envelope instead of re-typing identifiers.
type movieBatch struct {
	merge.Result
	Context     string             `json:"context"`
	Attachments []types.Attachment `json:"attachments"`
}

// attachmentsFor pre-builds the renderable attachments of a result set.
func attachmentsFor(items []types.MovieItem) []types.Attachment {
	if len(items) == 0 {
		return nil
	}
	n := len(items)
	if n > types.MaxAttachments {
		n = types.MaxAttachments
	}
	atts := make([]types.Attachment, n)
	for i := range atts {
		atts[i] = items[i].Attachment(i)
	}
	return atts
}

// Per-specialization thread notes. The raw thread is already injected as
// ground truth; these decode the keys the specialization understands into
// plain language so the model does not have to re-derive the encoding.

func discoveryContextNote(th *thread.Thread) string {
	var parts []string
	if year, ok := th.Year(); ok {
		parts = append(parts, fmt.Sprintf("year %d", year))
	}
	if ids := th.GenreIDs(); len(ids) > 0 {
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.Itoa(id)
		}
		parts = append(parts, "genre ids "+strings.Join(strs, ","))
	}
	if _, ok := th.Get(thread.KeyPage); ok {
		parts = append(parts, fmt.Sprintf("page %d", th.Page()))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Search state so far: " + strings.Join(parts, ", ") + "."
}

func personContextNote(th *thread.Thread) string {
	var parts []string
	if note := candidateNote(th.Candidates()); note != "" {
		parts = append(parts, note)
	}
	if id, ok := th.PersonID(); ok {
		parts = append(parts, fmt.Sprintf("A person is already resolved to id %d.", id))
	}
	return strings.Join(parts, " ")
}

func similarContextNote(th *thread.Thread) string {
	var parts []string
	if id, ok := th.RefMovieID(); ok {
		parts = append(parts, fmt.Sprintf("The reference movie is already resolved to id %d; reuse it.", id))
	}
	if note := candidateNote(th.Candidates()); note != "" {
		parts = append(parts, note)
	}
	return strings.Join(parts, " ")
}

// candidateNote renders the pending disambiguation list so the model can
// map answers like "le deuxième" back to an id.
func candidateNote(cands []types.Candidate) string {
	if len(cands) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Pending choices the user may be answering:")
	for i, c := range cands {
		fmt.Fprintf(&b, " %d) %s (id %d)", i+1, c.Name, c.ReferenceID)
	}
	b.WriteString(".")
	return b.String()
}
