package detect

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want Class
	}{
		{name: "empty", buf: nil, want: Class{IsText: true}},
		{name: "short binary", buf: []byte{0x00, 0x00, 0x01}, want: Class{IsText: true}},
		{name: "utf-8 bom", buf: []byte{0xEF, 0xBB, 0xBF, 'h', 'i'}, want: Class{IsText: true, HasBOM: true}},
		{name: "utf-16be bom", buf: []byte{0xFE, 0xFF, 0x00, 'a'}, want: Class{IsText: true, HasBOM: true}},
		{name: "utf-16le bom", buf: []byte{0xFF, 0xFE, 'a', 0x00}, want: Class{IsText: true, HasBOM: true}},
		{name: "utf-32be bom", buf: []byte{0x00, 0x00, 0xFE, 0xFF, 0x00, 0x00, 0x00, 'a'}, want: Class{IsText: true, HasBOM: true}},
		{name: "utf-7 bom", buf: []byte("+/v8-hello"), want: Class{IsText: true, HasBOM: true}},
		{name: "short bom", buf: []byte{0xFE, 0xFF}, want: Class{IsText: true, HasBOM: true}},
		{name: "plain ascii", buf: []byte("hello, world"), want: Class{IsText: true}},
		{name: "utf-16 text without bom", buf: []byte{0x00, 'h', 0x00, 'i', 0x00, '!'}, want: Class{IsText: true}},
		{name: "null pair", buf: []byte{'a', 'b', 0x00, 0x00, 'c', 'd'}, want: Class{IsText: false}},
		{name: "dense control pairs", buf: []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 'a', 'b'}, want: Class{IsText: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.buf); got != tt.want {
				t.Errorf("Classify(%v) = %+v, want %+v", tt.buf, got, tt.want)
			}
		})
	}
}

func TestClassifySparseControlPairsIsText(t *testing.T) {
	buf := append([]byte{0x00, 0x05}, bytes.Repeat([]byte("x"), 40)...)
	if got := Classify(buf); !got.IsText {
		t.Errorf("Classify() = %+v, want text for one control pair in %d bytes", got, len(buf))
	}
}

func TestFamilyWeight(t *testing.T) {
	tests := []struct {
		name string
		want float64
	}{
		{"UTF-32BE", 2.0},
		{"utf-32le", 2.0},
		{"UTF-16LE", 1.8},
		{"UTF-8", 1.5},
		{"UTF-7", 1.3},
		{"ASCII", 0.2},
		{"us-ascii", 0.2},
		{"ASCII-8BIT", 1.0},
		{"windows-1251", 1.0},
		{"", 1.0},
	}
	for _, tt := range tests {
		if got := FamilyWeight(tt.name); got != tt.want {
			t.Errorf("FamilyWeight(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVote(t *testing.T) {
	repeat := func(name string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = name
		}
		return out
	}

	tests := []struct {
		name       string
		candidates []string
		want       string
		wantOK     bool
	}{
		{name: "no candidates", candidates: nil, wantOK: false},
		{
			name:       "unicode family outweighs ascii",
			candidates: append(repeat("ASCII", 10), repeat("UTF-8", 3)...),
			want:       "UTF-8",
			wantOK:     true,
		},
		{
			name:       "tie keeps first seen",
			candidates: []string{"KOI8-R", "windows-1251"},
			want:       "KOI8-R",
			wantOK:     true,
		},
		{
			name:       "count beats weight",
			candidates: append(repeat("windows-1251", 4), repeat("UTF-16LE", 2)...),
			want:       "windows-1251",
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Vote(tt.candidates)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Vote() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTallyKeepsFirstSeenOrder(t *testing.T) {
	votes := Tally([]string{"B", "A", "B", "C", "A", "B"})
	want := []EncodingVote{
		{Name: "B", Count: 3, Weight: 1},
		{Name: "A", Count: 2, Weight: 1},
		{Name: "C", Count: 1, Weight: 1},
	}
	if len(votes) != len(want) {
		t.Fatalf("Tally() returned %d groups, want %d", len(votes), len(want))
	}
	for i := range want {
		if votes[i] != want[i] {
			t.Errorf("group %d = %+v, want %+v", i, votes[i], want[i])
		}
	}
}

func TestFinalizeEmptySession(t *testing.T) {
	s := Finalize(Reset())
	if !s.Done {
		t.Error("Finalize did not mark the session done")
	}
	if name, ok := s.Encoding(); ok {
		t.Errorf("Encoding() = %q, want none", name)
	}
}

func TestFeedBinaryStopsSession(t *testing.T) {
	s := Feed(Reset(), []byte{0x89, 'P', 'N', 'G', 0x00, 0x00, 0x00, 0x0D})
	if !s.Started || !s.Done || s.IsText {
		t.Fatalf("state after binary chunk = %+v", s)
	}

	s = Feed(s, []byte("plenty of readable text afterwards"))
	if name, ok := Finalize(s).Encoding(); ok {
		t.Errorf("binary session resolved to %q", name)
	}
}

func TestFeedConfidentShortCircuits(t *testing.T) {
	s := Feed(Reset(), []byte("Привет, мир"))
	if !s.Done {
		t.Fatalf("expected confident session to be done, got %+v", s)
	}
	if s.Resolved != "UTF-8" {
		t.Errorf("Resolved = %q, want UTF-8", s.Resolved)
	}
	if len(s.Candidates) != 0 {
		t.Errorf("confident session collected %d candidates", len(s.Candidates))
	}

	after := Finalize(Feed(s, []byte("more")))
	if after.Resolved != "UTF-8" {
		t.Errorf("Resolved changed after done: %q", after.Resolved)
	}
}

func TestFeedDoesNotAliasEarlierStates(t *testing.T) {
	base := Feed(Reset(), []byte("plain ascii text"))
	if base.Done {
		t.Fatalf("ascii must not be confident: %+v", base)
	}

	a := Feed(base, []byte("first branch"))
	b := Feed(base, []byte("second branch"))

	if len(base.Candidates) != 1 {
		t.Errorf("base candidates = %v, want one", base.Candidates)
	}
	if len(a.Candidates) != 2 || len(b.Candidates) != 2 {
		t.Errorf("branch candidates = %v / %v, want two each", a.Candidates, b.Candidates)
	}
}

func TestFeedSplitsIntoWindows(t *testing.T) {
	chunk := bytes.Repeat([]byte("a"), windowSize*2+10)
	s := Feed(Reset(), chunk)
	if got := len(s.Candidates); got != 3 {
		t.Errorf("collected %d candidates, want 3", got)
	}
}

func TestDetectASCII(t *testing.T) {
	name, ok := Detect(strings.NewReader("Just some plain text, nothing special."))
	if !ok || name != "ASCII" {
		t.Errorf("Detect() = (%q, %v), want (ASCII, true)", name, ok)
	}
}

func TestDetectUTF8(t *testing.T) {
	name, ok := DetectBytes([]byte("Grüße aus Köln, schöne Äpfel"))
	if !ok || name != "UTF-8" {
		t.Errorf("DetectBytes() = (%q, %v), want (UTF-8, true)", name, ok)
	}
}

func TestDetectEmpty(t *testing.T) {
	if name, ok := DetectBytes(nil); ok {
		t.Errorf("DetectBytes(nil) = %q, want none", name)
	}
}

type failingReader struct {
	data []byte
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, errors.New("disk on fire")
	}
	f.done = true
	return copy(p, f.data), nil
}

func TestDetectReadErrorFinalizesCollected(t *testing.T) {
	name, ok := Detect(&failingReader{data: []byte("ascii before the failure")})
	if !ok || name != "ASCII" {
		t.Errorf("Detect() = (%q, %v), want (ASCII, true)", name, ok)
	}
}

type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestDetectStopsReadingWhenConfident(t *testing.T) {
	payload := strings.Repeat("Привет, мир! ", 10000)
	cr := &countingReader{r: strings.NewReader(payload)}

	name, ok := Detect(cr)
	if !ok || name != "UTF-8" {
		t.Fatalf("Detect() = (%q, %v), want (UTF-8, true)", name, ok)
	}
	if cr.read != readChunkSize {
		t.Errorf("read %d bytes, want a single %d byte chunk", cr.read, readChunkSize)
	}
}

func BenchmarkDetect_ASCII(b *testing.B) {
	payload := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 2000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DetectBytes(payload)
	}
}

func BenchmarkDetect_UTF8(b *testing.B) {
	payload := []byte(strings.Repeat("Съешь же ещё этих мягких французских булок. ", 2000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DetectBytes(payload)
	}
}

func BenchmarkClassify(b *testing.B) {
	payload := bytes.Repeat([]byte("text\x00\x05"), 4096)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(payload)
	}
}
