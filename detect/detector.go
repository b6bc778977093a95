// Package detect guesses the character encoding of raw bytes.
//
// A detection session is a State value threaded through Feed and Finalize.
// The main analyzer short-circuits the session as soon as it is confident.
// Until then every chunk is also cut into fixed sub-windows whose individual
// guesses are collected and weighed by Vote when the session is finalized.
package detect

import (
	"bytes"
	"io"
	"slices"
)

const (
	windowSize      = 4096
	maxCandidates   = 2000
	windowThreshold = 0.30

	readChunkSize = 16 * 1024
	maxReadSize   = 20 * 1024 * 1024
)

// State is one detection session. Once Done is set Resolved never changes.
type State struct {
	Started bool
	Done    bool
	HasBOM  bool
	IsText  bool

	Candidates []string
	Resolved   string

	main analyzer
}

// Reset returns an empty session.
func Reset() State {
	return State{}
}

// Encoding returns the resolved encoding name, if any.
func (s State) Encoding() (string, bool) {
	return s.Resolved, s.Resolved != ""
}

// Feed adds chunk to the session and returns the updated state. The input
// state is left untouched.
func Feed(s State, chunk []byte) State {
	if s.Done || len(chunk) == 0 {
		return s
	}

	if !s.Started {
		s.Started = true
		class := Classify(chunk)
		s.IsText, s.HasBOM = class.IsText, class.HasBOM
		if !s.IsText {
			s.Done = true
			return s
		}
	}

	s.main = s.main.feed(chunk)
	if s.main.confident() {
		s.Done = true
		s.Resolved = s.main.charset
		return s
	}

	if len(s.Candidates) >= maxCandidates {
		return s
	}

	candidates := slices.Clone(s.Candidates)
	for off := 0; off < len(chunk) && len(candidates) < maxCandidates; off += windowSize {
		end := min(off+windowSize, len(chunk))
		name, confidence := guess(chunk[off:end])
		if name != "" && confidence > windowThreshold {
			candidates = append(candidates, name)
		}
	}
	s.Candidates = candidates
	return s
}

// Finalize closes the session. A confident main analyzer wins, otherwise the
// collected candidates are put to a weighted vote.
func Finalize(s State) State {
	if s.Done {
		return s
	}
	s.Done = true

	if s.main.confident() {
		s.Resolved = s.main.charset
		return s
	}
	if name, ok := Vote(s.Candidates); ok {
		s.Resolved = name
	}
	return s
}

// Detect reads r in chunks until the analyzer is confident, the read limit
// is reached or the reader fails, and returns the best encoding guess.
func Detect(r io.Reader) (string, bool) {
	s := Reset()
	buf := make([]byte, readChunkSize)

	for total := 0; total < maxReadSize && !s.Done; {
		n, err := r.Read(buf[:min(readChunkSize, maxReadSize-total)])
		if n > 0 {
			s = Feed(s, buf[:n])
			total += n
		}
		if err != nil {
			break
		}
	}

	return Finalize(s).Encoding()
}

// DetectBytes is Detect over an in-memory buffer.
func DetectBytes(b []byte) (string, bool) {
	return Detect(bytes.NewReader(b))
}
