package filter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrModeConflict is returned when include and exclude patterns are mixed.
var ErrModeConflict = errors.New("include and exclude filters are mutually exclusive")

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any non-blank pattern is configured.
func (o Options) Active() bool {
	for _, list := range [][]string{o.IncludeHeader, o.IncludeBody, o.ExcludeHeader, o.ExcludeBody} {
		for _, p := range list {
			if strings.TrimSpace(p) != "" {
				return true
			}
		}
	}
	return false
}

// Stats reports how often each pattern matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeHeaderHits     map[string]int
	IncludeBodyPatterns   []string
	IncludeBodyHits       map[string]int
	ExcludeHeaderPatterns []string
	ExcludeHeaderHits     map[string]int
	ExcludeBodyPatterns   []string
	ExcludeBodyHits       map[string]int
}

type patternSet struct {
	patterns []*regexp.Regexp
	hits     map[string]int
}

// Filter holds compiled regex patterns for selecting messages.
type Filter struct {
	includeMode   bool
	excludeMode   bool
	includeHeader patternSet
	includeBody   patternSet
	excludeHeader patternSet
	excludeBody   patternSet

	mu sync.Mutex
}

// New compiles the provided options. Without patterns every message passes.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader.patterns) > 0 || len(includeBody.patterns) > 0
	excludeActive := len(excludeHeader.patterns) > 0 || len(excludeBody.patterns) > 0
	if includeActive && excludeActive {
		return nil, ErrModeConflict
	}

	return &Filter{
		includeMode:   includeActive,
		excludeMode:   excludeActive,
		includeHeader: includeHeader,
		includeBody:   includeBody,
		excludeHeader: excludeHeader,
		excludeBody:   excludeBody,
	}, nil
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	if !f.includeMode && !f.excludeMode {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.includeMode {
		headerHit := f.includeHeader.match(header)
		bodyHit := f.includeBody.match(body)
		return headerHit || bodyHit
	}

	headerHit := f.excludeHeader.match(header)
	bodyHit := f.excludeBody.match(body)
	return !headerHit && !bodyHit
}

// AllowsRaw splits a raw message and applies Allows.
func (f *Filter) AllowsRaw(raw []byte) bool {
	header, body := SplitRawMessage(raw)
	return f.Allows(header, body)
}

// Stats returns a copy of the per-pattern hit counters.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		IncludeHeaderPatterns: f.includeHeader.sources(),
		IncludeHeaderHits:     copyHits(f.includeHeader.hits),
		IncludeBodyPatterns:   f.includeBody.sources(),
		IncludeBodyHits:       copyHits(f.includeBody.hits),
		ExcludeHeaderPatterns: f.excludeHeader.sources(),
		ExcludeHeaderHits:     copyHits(f.excludeHeader.hits),
		ExcludeBodyPatterns:   f.excludeBody.sources(),
		ExcludeBodyHits:       copyHits(f.excludeBody.hits),
	}
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(patterns []string) (patternSet, error) {
	set := patternSet{hits: make(map[string]int)}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return patternSet{}, fmt.Errorf("compile %q: %w", pattern, err)
		}
		set.patterns = append(set.patterns, re)
	}
	return set, nil
}

// match evaluates every pattern so each one gets its hit counted.
func (s patternSet) match(text []byte) bool {
	matched := false
	for _, re := range s.patterns {
		if re.Match(text) {
			s.hits[re.String()]++
			matched = true
		}
	}
	return matched
}

func (s patternSet) sources() []string {
	out := make([]string, 0, len(s.patterns))
	for _, re := range s.patterns {
		out = append(out, re.String())
	}
	return out
}

func copyHits(hits map[string]int) map[string]int {
	out := make(map[string]int, len(hits))
	for k, v := range hits {
		out[k] = v
	}
	return out
}
