package metadata

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestStringSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "foundation", b: "foundation", want: 1},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "foundation", b: "", want: 0},
		{name: "single rune mismatch", a: "a", b: "b", want: 0},
		{name: "disjoint", a: "abcd", b: "wxyz", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringSimilarity(tt.a, tt.b))
		})
	}
}

func TestStringSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"foundation", "foundation and empire"},
		{"the fellowship of the ring", "fellowship ring"},
		{"dune", "dune messiah"},
		{"a", "ab"},
	}
	for _, p := range pairs {
		got := StringSimilarity(p[0], p[1])
		if got < 0 || got > 1 {
			t.Fatalf("StringSimilarity(%q, %q) = %v, want within [0,1]", p[0], p[1], got)
		}
	}
}

func TestStringSimilaritySymmetry(t *testing.T) {
	a, b := "foundation and empire", "second foundation"
	assert.Equal(t, StringSimilarity(a, b), StringSimilarity(b, a))
}

func TestScoreTitleOnly(t *testing.T) {
	sn := Snippet{Title: "Foundation"}

	got := Score(sn, "Foundation", "", 0.6)
	assert.Equal(t, 1.0, got)

	// No snippet authors: author argument must not change the score.
	got = Score(sn, "Foundation", "Asimov", 0.6)
	assert.Equal(t, 1.0, got)
}

func TestScoreBlendsAuthor(t *testing.T) {
	sn := Snippet{Title: "Foundation", Authors: []string{"Isaac Asimov"}}

	authorSim := StringSimilarity("isaac asimov", "asimov")
	want := 0.6*1.0 + (1-0.6)*authorSim

	got := Score(sn, "Foundation", "Asimov", 0.6)
	assert.Equal(t, want, got)

	if got < 0.8 || got >= 1 {
		t.Fatalf("blended score = %v, want within [0.8, 1)", got)
	}
}

func TestScorePicksBestAuthor(t *testing.T) {
	sn := Snippet{Title: "Foundation", Authors: []string{"Somebody Else", "Isaac Asimov"}}

	single := Snippet{Title: "Foundation", Authors: []string{"Isaac Asimov"}}
	want := Score(single, "Foundation", "Isaac Asimov", 0.5)

	assert.Equal(t, want, Score(sn, "Foundation", "Isaac Asimov", 0.5))
}

func TestScoreClampsTitleWeight(t *testing.T) {
	sn := Snippet{Title: "Foundation", Authors: []string{"Isaac Asimov"}}

	// Weight above 1 clamps to pure title similarity.
	assert.Equal(t, 1.0, Score(sn, "Foundation", "nobody", 7))
	// Weight below 0 clamps to pure author similarity.
	assert.Equal(t, 1.0, Score(sn, "nothing alike", "Isaac Asimov", -3))
}

func TestScoreCaseInsensitive(t *testing.T) {
	sn := Snippet{Title: "FOUNDATION", Authors: []string{"ISAAC ASIMOV"}}
	assert.Equal(t, 1.0, Score(sn, "foundation", "", 1))
}

func TestScoreRange(t *testing.T) {
	snippets := []Snippet{
		{Title: "Foundation", Authors: []string{"Isaac Asimov"}},
		{Title: "Foundation and Empire"},
		{Title: ""},
		{Title: "Totally Unrelated", Authors: []string{"Nobody"}},
	}
	for _, sn := range snippets {
		got := Score(sn, "Foundation", "Asimov", 0.6)
		if got < 0 || got > 1 {
			t.Fatalf("Score(%q) = %v, want within [0,1]", sn.Title, got)
		}
	}
}
