// Package quality computes BLEU, chrF and TER between MT output and its post-edit.
//
// The edited text is always the hypothesis and the unedited MT output the sole
// reference, so the scores measure how far the operator moved away from the
// machine translation rather than translation quality against a gold standard.
package quality

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/verte-zerg/mtpe/internal/model"
)

const (
	bleuMaxOrder = 4
	chrfOrder    = 6
	chrfBeta     = 2.0
)

// ErrInvalidText is returned for input that is not valid UTF-8.
var ErrInvalidText = errors.New("text is not valid UTF-8")

// Pair is one hypothesis/reference pair for corpus scoring.
type Pair struct {
	Hypothesis string
	Reference  string
}

// Identity returns the scores used when both texts are the same.
func Identity() model.QualityScores {
	return model.QualityScores{BLEU: 100, CHRF: 100, TER: 0, Degenerate: true}
}

// Score compares the edited text against the MT output.
// Texts that are equal after normalization, or where either side is blank,
// score as identical.
func Score(edited, mt string) (model.QualityScores, error) {
	if err := validate(edited, mt); err != nil {
		return model.QualityScores{}, err
	}
	if degenerate(edited, mt) {
		return Identity(), nil
	}
	var s sufficientStats
	s.add(edited, mt)
	return s.scores(), nil
}

// CorpusScore aggregates statistics over all pairs before scoring.
func CorpusScore(pairs []Pair) (model.QualityScores, error) {
	var s sufficientStats
	counted := 0
	for i, p := range pairs {
		if err := validate(p.Hypothesis, p.Reference); err != nil {
			return model.QualityScores{}, fmt.Errorf("pair %d: %w", i, err)
		}
		if isBlank(p.Hypothesis) || isBlank(p.Reference) {
			continue
		}
		s.add(p.Hypothesis, p.Reference)
		counted++
	}
	if counted == 0 {
		return Identity(), nil
	}
	return s.scores(), nil
}

func validate(texts ...string) error {
	for _, t := range texts {
		if !utf8.ValidString(t) {
			return ErrInvalidText
		}
	}
	return nil
}

func degenerate(a, b string) bool {
	if isBlank(a) || isBlank(b) {
		return true
	}
	return normalize(a) == normalize(b)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalize folds case and collapses whitespace.
func normalize(s string) string {
	folded := cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

type sufficientStats struct {
	bleuMatches [bleuMaxOrder]int
	bleuTotals  [bleuMaxOrder]int
	hypLen      int
	refLen      int

	chrfMatches [chrfOrder]int
	chrfHyp     [chrfOrder]int
	chrfRef     [chrfOrder]int

	terEdits  int
	terRefLen int
}

func (s *sufficientStats) add(hyp, ref string) {
	hypTokens := bleuTokens(hyp)
	refTokens := bleuTokens(ref)
	s.hypLen += len(hypTokens)
	s.refLen += len(refTokens)
	for n := 1; n <= bleuMaxOrder; n++ {
		matches, total := ngramOverlap(hypTokens, refTokens, n)
		s.bleuMatches[n-1] += matches
		s.bleuTotals[n-1] += total
	}

	hypChars := chrfChars(hyp)
	refChars := chrfChars(ref)
	for n := 1; n <= chrfOrder; n++ {
		matches, total := ngramOverlap(hypChars, refChars, n)
		s.chrfMatches[n-1] += matches
		s.chrfHyp[n-1] += total
		s.chrfRef[n-1] += ngramCount(len(refChars), n)
	}

	hypWords := terTokens(hyp)
	refWords := terTokens(ref)
	s.terEdits += terEdits(hypWords, refWords)
	s.terRefLen += len(refWords)
}

func (s *sufficientStats) scores() model.QualityScores {
	return model.QualityScores{
		BLEU: round2(s.bleu()),
		CHRF: round2(s.chrf()),
		TER:  round2(s.ter()),
	}
}

// bleu uses exponential smoothing for orders without matches and only the
// orders the hypothesis is long enough to have.
func (s *sufficientStats) bleu() float64 {
	if s.hypLen == 0 {
		return 0
	}
	smooth := 1.0
	logSum := 0.0
	order := 0
	for n := 0; n < bleuMaxOrder; n++ {
		if s.bleuTotals[n] == 0 {
			break
		}
		order = n + 1
		var precision float64
		if s.bleuMatches[n] == 0 {
			smooth *= 2
			precision = 100 / (smooth * float64(s.bleuTotals[n]))
		} else {
			precision = 100 * float64(s.bleuMatches[n]) / float64(s.bleuTotals[n])
		}
		logSum += math.Log(precision)
	}
	if order == 0 {
		return 0
	}
	bp := 1.0
	if s.hypLen < s.refLen {
		bp = math.Exp(1 - float64(s.refLen)/float64(s.hypLen))
	}
	return bp * math.Exp(logSum/float64(order))
}

// chrf averages precision and recall over the orders both sides have, then
// takes the F-beta score of the averages.
func (s *sufficientStats) chrf() float64 {
	const eps = 1e-16
	factor := chrfBeta * chrfBeta
	var sumPrec, sumRec float64
	order := 0
	for n := 0; n < chrfOrder; n++ {
		precision, recall := eps, eps
		if s.chrfHyp[n] > 0 {
			precision = float64(s.chrfMatches[n]) / float64(s.chrfHyp[n])
		}
		if s.chrfRef[n] > 0 {
			recall = float64(s.chrfMatches[n]) / float64(s.chrfRef[n])
		}
		if s.chrfHyp[n] > 0 && s.chrfRef[n] > 0 {
			order++
		}
		sumPrec += precision
		sumRec += recall
	}
	if order == 0 {
		return 0
	}
	precision := sumPrec / float64(order)
	recall := sumRec / float64(order)
	if precision+recall == 0 {
		return 0
	}
	return 100 * (1 + factor) * precision * recall / (factor*precision + recall)
}

func (s *sufficientStats) ter() float64 {
	if s.terRefLen == 0 {
		if s.terEdits == 0 {
			return 0
		}
		return 100
	}
	return 100 * float64(s.terEdits) / float64(s.terRefLen)
}

// bleuTokens splits on whitespace and separates punctuation and symbols.
func bleuTokens(s string) []string {
	s = norm.NFC.String(s)
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func chrfChars(s string) []string {
	s = norm.NFC.String(s)
	out := make([]string, 0, len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, string(r))
	}
	return out
}

func terTokens(s string) []string {
	return strings.Fields(cases.Fold().String(norm.NFC.String(s)))
}

func ngramCount(length, n int) int {
	if length < n {
		return 0
	}
	return length - n + 1
}

// ngramOverlap returns clipped n-gram matches and the hypothesis n-gram total.
func ngramOverlap(hyp, ref []string, n int) (matches, total int) {
	total = ngramCount(len(hyp), n)
	if total == 0 {
		return 0, 0
	}
	refCounts := map[string]int{}
	for i := 0; i+n <= len(ref); i++ {
		refCounts[strings.Join(ref[i:i+n], "\x00")]++
	}
	for i := 0; i+n <= len(hyp); i++ {
		key := strings.Join(hyp[i:i+n], "\x00")
		if refCounts[key] > 0 {
			refCounts[key]--
			matches++
		}
	}
	return matches, total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
