package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinechat/internal/types"
)

func TestParse_Empty(t *testing.T) {
	assert.Equal(t, 0, Parse("").Len())
	assert.Equal(t, "", Parse("").Serialize())
}

func TestParse_Basic(t *testing.T) {
	th := Parse("year=2014;genreIds=14,878;page=2")

	year, ok := th.Year()
	require.True(t, ok)
	assert.Equal(t, 2014, year)
	assert.Equal(t, []int{14, 878}, th.GenreIDs())
	assert.Equal(t, 2, th.Page())
}

func TestParse_MalformedSegmentsDropped(t *testing.T) {
	th := Parse("year=2014;;garbage;=nokey;page=3")

	year, ok := th.Year()
	require.True(t, ok)
	assert.Equal(t, 2014, year)
	assert.Equal(t, 3, th.Page())
	assert.Equal(t, 2, th.Len())
}

func TestParse_UnknownKeysPreserved(t *testing.T) {
	th := Parse("mood=noir;year=1950")

	v, ok := th.Get("mood")
	require.True(t, ok)
	assert.Equal(t, "noir", v)
	assert.Equal(t, "mood=noir;year=1950", th.Serialize())
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"year=2014",
		"year=2014;genreIds=14;page=1",
		"tmdbPersonId=1100",
		"refTmdbMovieId=603;page=1",
		`candidates=[{"referenceId":1,"name":"A"},{"referenceId":2,"name":"B"}]`,
	}
	for _, raw := range cases {
		assert.Equal(t, raw, Parse(raw).Serialize(), "round trip of %q", raw)
	}
}

func TestCandidates_SemicolonInsideJSON(t *testing.T) {
	raw := `refTmdbMovieId=603;candidates=[{"referenceId":7,"name":"Bill; the Second"}]`
	th := Parse(raw)

	id, ok := th.RefMovieID()
	require.True(t, ok)
	assert.Equal(t, 603, id)

	cands := th.Candidates()
	require.Len(t, cands, 1)
	assert.Equal(t, "Bill; the Second", cands[0].Name)
	assert.Equal(t, raw, th.Serialize())
}

func TestCandidates_MalformedTreatedAsAbsent(t *testing.T) {
	for _, raw := range []string{
		"candidates=[{broken",
		"candidates=not-json",
		"candidates=",
		`candidates={"referenceId":1}`,
	} {
		th := Parse(raw)
		assert.Nil(t, th.Candidates(), "input %q", raw)
	}
}

func TestSetCandidates_CapsAtThree(t *testing.T) {
	th := New()
	th.SetCandidates([]types.Candidate{
		{ReferenceID: 1, Name: "a"},
		{ReferenceID: 2, Name: "b"},
		{ReferenceID: 3, Name: "c"},
		{ReferenceID: 4, Name: "d"},
	})
	assert.Len(t, th.Candidates(), 3)

	th.SetCandidates(nil)
	_, ok := th.Get(KeyCandidates)
	assert.False(t, ok)
}

func TestClearIdentifiers(t *testing.T) {
	th := Parse(`tmdbPersonId=42;refTmdbMovieId=603;candidates=[{"referenceId":1,"name":"x"}];year=1999`)
	th.ClearIdentifiers()

	_, hasPerson := th.PersonID()
	_, hasRef := th.RefMovieID()
	assert.False(t, hasPerson)
	assert.False(t, hasRef)
	assert.Nil(t, th.Candidates())

	year, ok := th.Year()
	require.True(t, ok)
	assert.Equal(t, 1999, year)
}

func TestPage_DefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, Parse("").Page())
	assert.Equal(t, 1, Parse("page=zero").Page())
	assert.Equal(t, 1, Parse("page=-2").Page())
}

func TestParse_NeverPanicsOnArbitraryInput(t *testing.T) {
	inputs := []string{
		";;;===;;;",
		`candidates=[[[{{{"`,
		"\x00\xff=;\\\"",
		"a=b;a=c",
		"=",
	}
	for _, in := range inputs {
		th := Parse(in)
		_ = th.Serialize()
		_ = th.Candidates()
	}
	// Duplicate keys: last write wins.
	v, _ := Parse("a=b;a=c").Get("a")
	assert.Equal(t, "c", v)
}
