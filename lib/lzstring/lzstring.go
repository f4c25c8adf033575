// Package lzstring implements the base64 flavor of the LZ-string compression
// scheme. The output is bit-for-bit identical to LZString.compressToBase64 from
// the reference JavaScript library, which is what the query portal expects for
// its obfuscated login fields.
package lzstring

import (
	"strings"
	"unicode/utf16"
)

const keyStrBase64 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

var baseReverse = func() map[byte]int {
	out := make(map[byte]int, len(keyStrBase64))
	for i := 0; i < len(keyStrBase64); i++ {
		out[keyStrBase64[i]] = i
	}
	return out
}()

// bitWriter packs values into characters of bitsPerChar bits each.
type bitWriter struct {
	bitsPerChar int
	val         int
	position    int
	out         strings.Builder
}

func (w *bitWriter) push() {
	w.out.WriteByte(keyStrBase64[w.val])
	w.val = 0
	w.position = 0
}

func (w *bitWriter) writeBit(bit int) {
	w.val = (w.val << 1) | bit
	if w.position == w.bitsPerChar-1 {
		w.push()
		return
	}
	w.position++
}

// writeBits writes the lowest n bits of value, least significant bit first.
func (w *bitWriter) writeBits(value, n int) {
	for i := 0; i < n; i++ {
		w.writeBit(value & 1)
		value >>= 1
	}
}

func (w *bitWriter) flush() {
	for {
		w.val <<= 1
		if w.position == w.bitsPerChar-1 {
			w.out.WriteByte(keyStrBase64[w.val])
			return
		}
		w.position++
	}
}

// dictionary keys are sequences of UTF-16 code units, each stored as two bytes
// so that lone surrogates stay distinct.
func unitKey(unit uint16) string {
	return string([]byte{byte(unit >> 8), byte(unit)})
}

func firstUnit(key string) uint16 {
	return uint16(key[0])<<8 | uint16(key[1])
}

type compressor struct {
	out        *bitWriter
	dictionary map[string]int
	toCreate   map[string]bool
	dictSize   int
	numBits    int
	enlargeIn  int
}

func (c *compressor) decrementEnlarge() {
	c.enlargeIn--
	if c.enlargeIn == 0 {
		c.enlargeIn = 1 << c.numBits
		c.numBits++
	}
}

func (c *compressor) emit(w string) {
	if c.toCreate[w] {
		unit := firstUnit(w)
		if unit < 256 {
			c.out.writeBits(0, c.numBits)
			c.out.writeBits(int(unit), 8)
		} else {
			c.out.writeBits(1, c.numBits)
			c.out.writeBits(int(unit), 16)
		}
		c.decrementEnlarge()
		delete(c.toCreate, w)
	} else {
		c.out.writeBits(c.dictionary[w], c.numBits)
	}
	c.decrementEnlarge()
}

func compress(units []uint16, bitsPerChar int) string {
	c := &compressor{
		out:        &bitWriter{bitsPerChar: bitsPerChar},
		dictionary: map[string]int{},
		toCreate:   map[string]bool{},
		dictSize:   3,
		numBits:    2,
		enlargeIn:  2,
	}

	w := ""
	for _, unit := range units {
		ch := unitKey(unit)
		if _, ok := c.dictionary[ch]; !ok {
			c.dictionary[ch] = c.dictSize
			c.dictSize++
			c.toCreate[ch] = true
		}

		wc := w + ch
		if _, ok := c.dictionary[wc]; ok {
			w = wc
			continue
		}
		c.emit(w)
		c.dictionary[wc] = c.dictSize
		c.dictSize++
		w = ch
	}
	if w != "" {
		c.emit(w)
	}

	// end of stream marker
	c.out.writeBits(2, c.numBits)
	c.out.flush()
	return c.out.out.String()
}

// CompressToBase64 is the equivalent of LZString.compressToBase64.
func CompressToBase64(input string) string {
	res := compress(utf16.Encode([]rune(input)), 6)
	switch len(res) % 4 {
	case 1:
		return res + "==="
	case 2:
		return res + "=="
	case 3:
		return res + "="
	}
	return res
}
