package quality

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func TestScoreIdentity(t *testing.T) {
	got, err := Score("The cat sat on the mat.", "The cat sat on the mat.")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.BLEU != 100 || got.CHRF != 100 || got.TER != 0 {
		t.Fatalf("unexpected scores: %+v", got)
	}
}

func TestScoreIdentityIgnoresCaseAndSpacing(t *testing.T) {
	got, err := Score("the  Cat sat", "The cat sat")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !got.Degenerate || got.TER != 0 {
		t.Fatalf("expected identity, got %+v", got)
	}
}

func TestScoreEmptySide(t *testing.T) {
	for _, tc := range []struct{ edited, mt string }{
		{"", "Hello world"},
		{"Hello world", "   "},
	} {
		got, err := Score(tc.edited, tc.mt)
		if err != nil {
			t.Fatalf("Score(%q, %q): %v", tc.edited, tc.mt, err)
		}
		if !got.Degenerate || got.BLEU != 100 {
			t.Fatalf("Score(%q, %q) = %+v, want identity", tc.edited, tc.mt, got)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	got, err := Score("A completely different sentence appears here", "The cat sat on the mat")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.BLEU < 0 || got.BLEU > 100 {
		t.Fatalf("bleu out of range: %v", got.BLEU)
	}
	if got.CHRF < 0 || got.CHRF > 100 {
		t.Fatalf("chrf out of range: %v", got.CHRF)
	}
	if got.TER < 0 {
		t.Fatalf("ter negative: %v", got.TER)
	}
	if got.Degenerate {
		t.Fatalf("unexpected degenerate result")
	}
}

func TestScoreSmallEditBeatsRewrite(t *testing.T) {
	small, err := Score("The cat sat on the red mat", "The cat sat on the mat")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	rewrite, err := Score("Dogs run across fields quickly", "The cat sat on the mat")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if small.BLEU <= rewrite.BLEU || small.CHRF <= rewrite.CHRF || small.TER >= rewrite.TER {
		t.Fatalf("small edit %+v should score closer than rewrite %+v", small, rewrite)
	}
}

func TestTERSingleInsertion(t *testing.T) {
	got, err := Score("The cat sat on the red mat", "The cat sat on the mat")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// One insertion against a six word reference.
	if got.TER != 16.67 {
		t.Fatalf("ter = %v, want 16.67", got.TER)
	}
}

func TestTERCountsShiftAsOneEdit(t *testing.T) {
	hyp := []string{"c", "d", "e", "a", "b"}
	ref := []string{"a", "b", "c", "d", "e"}
	if got := terEdits(hyp, ref); got != 1 {
		t.Fatalf("terEdits = %d, want 1", got)
	}
}

func TestTERNoShiftForUnknownPhrase(t *testing.T) {
	hyp := []string{"x", "y"}
	ref := []string{"a", "b"}
	if got := terEdits(hyp, ref); got != 2 {
		t.Fatalf("terEdits = %d, want 2", got)
	}
}

func TestScoreInvalidUTF8(t *testing.T) {
	_, err := Score("bad \xff text", "good text")
	if !errors.Is(err, ErrInvalidText) {
		t.Fatalf("expected ErrInvalidText, got %v", err)
	}
}

func TestCorpusScore(t *testing.T) {
	pairs := []Pair{
		{Hypothesis: "The cat sat on the mat", Reference: "The cat sat on the mat"},
		{Hypothesis: "A dog barked loudly", Reference: "The dog barked"},
		{Hypothesis: "", Reference: "skipped"},
	}
	got, err := CorpusScore(pairs)
	if err != nil {
		t.Fatalf("CorpusScore: %v", err)
	}
	if got.Degenerate {
		t.Fatalf("corpus score should not be degenerate")
	}
	if got.BLEU <= 0 || got.BLEU >= 100 {
		t.Fatalf("corpus bleu = %v", got.BLEU)
	}
	if got.TER <= 0 || got.TER > 100 {
		t.Fatalf("corpus ter = %v", got.TER)
	}
}

func TestCorpusScoreAllBlank(t *testing.T) {
	got, err := CorpusScore([]Pair{{Hypothesis: "", Reference: ""}})
	if err != nil {
		t.Fatalf("CorpusScore: %v", err)
	}
	if !got.Degenerate {
		t.Fatalf("expected identity for blank corpus, got %+v", got)
	}
}

func TestScoreKnownValues(t *testing.T) {
	cases := []struct {
		edited, mt string
		bleu, chrf float64
	}{
		{edited: "The cat sat on the red mat", mt: "The cat sat on the mat", bleu: 64.35, chrf: 81.77},
		// No 4-gram match, so the fourth precision is smoothed to 50%.
		{edited: "the cat sat down", mt: "the cat sat", bleu: 59.46},
	}
	for _, tc := range cases {
		got, err := Score(tc.edited, tc.mt)
		if err != nil {
			t.Fatalf("Score(%q): %v", tc.edited, err)
		}
		if got.BLEU != tc.bleu {
			t.Fatalf("Score(%q).BLEU = %v, want %v", tc.edited, got.BLEU, tc.bleu)
		}
		if tc.chrf != 0 && got.CHRF != tc.chrf {
			t.Fatalf("Score(%q).CHRF = %v, want %v", tc.edited, got.CHRF, tc.chrf)
		}
	}
}

func TestTERLongReorderedSegment(t *testing.T) {
	ref := make([]string, 120)
	for i := range ref {
		ref[i] = fmt.Sprintf("w%d", i)
	}
	hyp := slices.Clone(ref)
	slices.Reverse(hyp)
	start := time.Now()
	got := terEdits(hyp, ref)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("terEdits took %v on %d words", elapsed, len(ref))
	}
	if got <= 0 || got > len(ref) {
		t.Fatalf("terEdits = %d, want within (0, %d]", got, len(ref))
	}
}

func TestShiftPhrase(t *testing.T) {
	words := []string{"a", "b", "c", "d", "e"}
	cases := []struct {
		start, span, target int
		want                string
	}{
		{start: 3, span: 2, target: 0, want: "[d e a b c]"},
		{start: 0, span: 1, target: 5, want: "[b c d e a]"},
		{start: 1, span: 1, target: 1, want: "[a b c d e]"},
	}
	for _, tc := range cases {
		got := fmt.Sprint(shiftPhrase(words, tc.start, tc.span, tc.target))
		if got != tc.want {
			t.Fatalf("shiftPhrase(%d,%d,%d) = %s, want %s", tc.start, tc.span, tc.target, got, tc.want)
		}
	}
}
