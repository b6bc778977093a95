package detect

import "bytes"

// Class is the outcome of a text/binary classification.
type Class struct {
	IsText bool
	HasBOM bool
}

// Longer marks first so FF FE 00 00 is not mistaken for FF FE.
var byteOrderMarks = [][]byte{
	{0x00, 0x00, 0xFE, 0xFF}, // UTF-32BE
	{0xFF, 0xFE, 0x00, 0x00}, // UTF-32LE
	{0xEF, 0xBB, 0xBF},       // UTF-8
	{0x2B, 0x2F, 0x76},       // UTF-7
	{0xFE, 0xFF},             // UTF-16BE
	{0xFF, 0xFE},             // UTF-16LE
}

// Classify decides whether buf looks like text and whether it starts with a
// byte-order mark. Buffers shorter than four bytes are treated as text.
func Classify(buf []byte) Class {
	for _, bom := range byteOrderMarks {
		if bytes.HasPrefix(buf, bom) {
			return Class{IsText: true, HasBOM: true}
		}
	}

	if len(buf) < 4 {
		return Class{IsText: true}
	}

	nullPairs, controlPairs := 0, 0
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] != 0x00 {
			continue
		}
		next := buf[i+1]
		if next == 0x00 {
			nullPairs++
			if nullPairs > 1 {
				break
			}
			continue
		}
		if next < 0x0A {
			controlPairs++
		}
	}

	return Class{IsText: nullPairs == 0 && controlPairs <= len(buf)/10}
}
