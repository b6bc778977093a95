package detect

import (
	"github.com/gogs/chardet"
)

const (
	asciiName = "ASCII"

	maxSampleSize       = 64 * 1024
	confidenceThreshold = 0.95
)

// analyzer wraps the statistical detector. chardet only works on whole
// buffers, so the analyzer keeps a bounded sample and re-runs detection
// whenever the sample grows.
type analyzer struct {
	sample     []byte
	analyzed   int
	charset    string
	confidence float64
}

func (a analyzer) feed(chunk []byte) analyzer {
	if room := maxSampleSize - len(a.sample); room > 0 && len(chunk) > 0 {
		if len(chunk) > room {
			chunk = chunk[:room]
		}
		a.sample = append(a.sample[:len(a.sample):len(a.sample)], chunk...)
	}
	if len(a.sample) == a.analyzed {
		return a
	}
	a.analyzed = len(a.sample)
	a.charset, a.confidence = guess(a.sample)
	return a
}

func (a analyzer) confident() bool {
	return a.charset != "" && a.charset != asciiName && a.confidence >= confidenceThreshold
}

// guess runs one detection pass over b and returns the best charset name with
// a confidence in [0, 1].
func guess(b []byte) (string, float64) {
	if len(b) == 0 {
		return "", 0
	}
	if isASCII(b) {
		return asciiName, 1.0
	}

	res, err := chardet.NewTextDetector().DetectBest(b)
	if err != nil || res == nil {
		return "", 0
	}
	return res.Charset, float64(res.Confidence) / 100
}

// ESC counts as non-ASCII so ISO-2022 streams reach the detector.
func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 || c == 0x1B {
			return false
		}
	}
	return true
}
