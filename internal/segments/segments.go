// Package segments loads source/MT sentence pairs from line-aligned files.
package segments

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/verte-zerg/mtpe/internal/model"
)

// Load reads the source and MT files and pairs them by line.
// Lines are trimmed and blank lines dropped; both files must then hold the
// same number of lines.
func Load(sourcePath, mtPath string) ([]model.Segment, error) {
	source, err := readLines(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	mt, err := readLines(mtPath)
	if err != nil {
		return nil, fmt.Errorf("read mt: %w", err)
	}
	return Pair(source, mt)
}

// Pair builds segments from index-aligned source and MT lines.
func Pair(source, mt []string) ([]model.Segment, error) {
	if len(source) != len(mt) {
		return nil, fmt.Errorf("line count mismatch: %d source lines, %d mt lines", len(source), len(mt))
	}
	if len(source) == 0 {
		return nil, fmt.Errorf("no segments to edit")
	}
	segs := make([]model.Segment, len(source))
	for i := range source {
		segs[i] = model.Segment{ID: i, Source: source[i], MT: mt[i], Current: mt[i]}
	}
	return segs, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only input.
			_ = cerr
		}
	}()
	return ReadLines(file)
}

// ReadLines returns the trimmed, non-blank lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Fingerprint hashes the immutable text of a document so a resumed session
// can be matched to the files it was created from.
func Fingerprint(segs []model.Segment) string {
	h := blake3.New()
	for _, s := range segs {
		_, _ = io.WriteString(h, s.Source)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, s.MT)
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
