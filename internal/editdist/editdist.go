// Package editdist counts token insertions and deletions between two texts.
package editdist

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Unit selects the token granularity.
type Unit int

const (
	// Words splits on whitespace after stripping punctuation.
	Words Unit = iota
	// Chars uses every non-space rune as a token.
	Chars
)

func (u Unit) String() string {
	if u == Chars {
		return "char"
	}
	return "word"
}

// Kind classifies one operation of an edit script.
type Kind int

// Edit script operation kinds.
const (
	Equal Kind = iota
	Insert
	Delete
	Substitute
)

// Op is one step of an alignment between a and b.
// A is empty for inserts, B is empty for deletes.
type Op struct {
	Kind Kind
	A    string
	B    string
}

// Counts holds insertions and deletions; substitutions contribute one of each.
type Counts struct {
	Insertions int
	Deletions  int
}

// Total returns the sum of insertions and deletions.
func (c Counts) Total() int {
	return c.Insertions + c.Deletions
}

// Tokenize splits text into tokens of the given unit.
func Tokenize(text string, unit Unit) []string {
	text = norm.NFC.String(text)
	if unit == Chars {
		tokens := make([]string, 0, len(text))
		for _, r := range text {
			if unicode.IsSpace(r) {
				continue
			}
			tokens = append(tokens, string(r))
		}
		return tokens
	}
	// Symbols go with punctuation so ASCII marks such as $+<=>^`|~ are
	// dropped along with .,;:!?
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(stripped)
}

// Compute counts insertions and deletions needed to turn mt into edited.
func Compute(mt, edited string, unit Unit) Counts {
	return Count(Align(Tokenize(mt, unit), Tokenize(edited, unit)))
}

// Diff returns the edit script from mt to edited.
func Diff(mt, edited string, unit Unit) []Op {
	return Align(Tokenize(mt, unit), Tokenize(edited, unit))
}

// Count classifies an edit script into insertions and deletions.
func Count(ops []Op) Counts {
	var c Counts
	for _, op := range ops {
		switch op.Kind {
		case Insert:
			c.Insertions++
		case Delete:
			c.Deletions++
		case Substitute:
			c.Insertions++
			c.Deletions++
		}
	}
	return c
}

// Distance returns the Levenshtein distance between two token sequences.
func Distance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j-1]+cost, prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Align computes a minimal edit script turning a into b.
// Ties in the backtrace prefer match, then substitution, then deletion, then insertion.
func Align(a, b []string) []Op {
	rows, cols := len(a)+1, len(b)+1
	dist := make([][]int, rows)
	for i := range dist {
		dist[i] = make([]int, cols)
		dist[i][0] = i
	}
	for j := 0; j < cols; j++ {
		dist[0][j] = j
	}
	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			dist[i][j] = min(dist[i-1][j-1]+cost, dist[i-1][j]+1, dist[i][j-1]+1)
		}
	}

	ops := make([]Op, 0, max(len(a), len(b)))
	i, j := len(a), len(b)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1] && dist[i][j] == dist[i-1][j-1]:
			ops = append(ops, Op{Kind: Equal, A: a[i-1], B: b[j-1]})
			i--
			j--
		case i > 0 && j > 0 && dist[i][j] == dist[i-1][j-1]+1:
			ops = append(ops, Op{Kind: Substitute, A: a[i-1], B: b[j-1]})
			i--
			j--
		case i > 0 && dist[i][j] == dist[i-1][j]+1:
			ops = append(ops, Op{Kind: Delete, A: a[i-1]})
			i--
		default:
			ops = append(ops, Op{Kind: Insert, B: b[j-1]})
			j--
		}
	}
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}
