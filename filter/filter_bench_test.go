package filter

import (
	"strings"
	"testing"
)

var benchRaw = []byte("From: test@example.com\r\nTo: user@example.com\r\nSubject: Monthly statement\r\n\r\n" +
	strings.Repeat("This is a test message body with some content.\r\n", 200))

// BenchmarkFilter_AllowsRaw_NoFilters measures the pass-through path
func BenchmarkFilter_AllowsRaw_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsRaw(benchRaw)
	}
}

// BenchmarkFilter_AllowsRaw_HeaderAndBody runs header and body patterns together
func BenchmarkFilter_AllowsRaw_HeaderAndBody(b *testing.B) {
	f, err := New(Options{
		ExcludeHeader: []string{"From:.*@spam\\.com"},
		ExcludeBody:   []string{"(?i)unsubscribe"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsRaw(benchRaw)
	}
}
