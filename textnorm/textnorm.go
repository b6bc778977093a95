// Package textnorm turns decoded header and body text into clean UTF-8.
package textnorm

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/dhcgn/eml-extract/detect"
)

// Codepage is the fixed single-byte codepage tried before detection.
var Codepage = charmap.Windows1251

// Names reported by the detector that the IANA and HTML indexes do not know.
func init() {
	charset.RegisterEncoding("ascii", charmap.Windows1252)
	charset.RegisterEncoding("us-ascii", charmap.Windows1252)
	charset.RegisterEncoding("gb-18030", simplifiedchinese.GB18030)
	charset.RegisterEncoding("utf-32be", utf32.UTF32(utf32.BigEndian, utf32.UseBOM))
	charset.RegisterEncoding("utf-32le", utf32.UTF32(utf32.LittleEndian, utf32.UseBOM))
	charset.RegisterEncoding("utf-16be", unicode.UTF16(unicode.BigEndian, unicode.UseBOM))
	charset.RegisterEncoding("utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
}

// Normalize returns text re-encoded as UTF-8. Text that survives a round trip
// through Codepage is returned as is, and so is any other valid UTF-8. Only
// raw legacy bytes are run through the charset detector. On any failure the
// input is returned unchanged.
func Normalize(text string) string {
	if out, ok := roundTrip(text); ok {
		return out
	}
	// Valid UTF-8 is already decoded.
	if utf8.ValidString(text) {
		return text
	}

	name, ok := detect.DetectBytes([]byte(text))
	if !ok {
		return strings.ToValidUTF8(text, "�")
	}

	out, err := decode(name, text)
	if err != nil {
		return text
	}
	return out
}

func roundTrip(text string) (string, bool) {
	if !utf8.ValidString(text) {
		return "", false
	}

	encoded, err := Codepage.NewEncoder().String(text)
	if err != nil {
		return "", false
	}
	decoded, err := Codepage.NewDecoder().String(encoded)
	if err != nil {
		return "", false
	}
	return decoded, true
}

func decode(name, text string) (string, error) {
	if strings.EqualFold(name, "utf-8") {
		return strings.ToValidUTF8(text, "�"), nil
	}

	r, err := charset.Reader(name, strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("charset %s: %w", name, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return strings.ToValidUTF8(string(decoded), "�"), nil
}
