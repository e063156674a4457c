package builder

import (
	"encoding/binary"
	"fmt"
)

// ScratchWords is the capacity of the encoding work area in 32-bit words.
const ScratchWords = 4 * 1024 * 1024

// Scratch is a reusable word buffer with a hard capacity.
// Memory is grown on demand up to the capacity and kept across Reset.
type Scratch struct {
	buf      []byte
	capWords int
}

// NewScratch creates a scratch buffer holding at most capWords words.
func NewScratch(capWords int) (*Scratch, error) {
	if capWords < EventHeaderWords {
		return nil, fmt.Errorf("scratch capacity %d below event header size %d", capWords, EventHeaderWords)
	}
	return &Scratch{capWords: capWords}, nil
}

// Reset empties the buffer.
func (s *Scratch) Reset() { s.buf = s.buf[:0] }

// Words returns the number of words written.
func (s *Scratch) Words() int { return len(s.buf) / 4 }

// Cap returns the capacity in words.
func (s *Scratch) Cap() int { return s.capWords }

// Fits reports whether n more words fit.
func (s *Scratch) Fits(n int) bool { return s.Words()+n <= s.capWords }

// PutWord appends one word. Returns false if the buffer is full.
func (s *Scratch) PutWord(w uint32) bool {
	if !s.Fits(1) {
		return false
	}
	s.buf = binary.LittleEndian.AppendUint32(s.buf, w)
	return true
}

// PutBytes appends b zero-padded to a word boundary.
func (s *Scratch) PutBytes(b []byte) bool {
	words := PaddedWords(len(b))
	if !s.Fits(words) {
		return false
	}
	s.buf = append(s.buf, b...)
	for len(s.buf)%4 != 0 {
		s.buf = append(s.buf, 0)
	}
	return true
}

// SetWord overwrites the word at index i.
func (s *Scratch) SetWord(i int, w uint32) {
	binary.LittleEndian.PutUint32(s.buf[i*4:], w)
}

// Bytes returns a copy of the written bytes.
func (s *Scratch) Bytes() []byte {
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}

// PaddedWords returns the words needed for n payload bytes.
func PaddedWords(n int) int {
	return (n + 3) / 4
}
