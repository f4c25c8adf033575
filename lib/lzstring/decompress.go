package lzstring

import (
	"errors"
	"unicode/utf16"
)

var ErrCorrupt = errors.New("lzstring: corrupt input")

type bitReader struct {
	input      string
	resetValue int
	val        int
	position   int
	index      int
}

func (r *bitReader) valueAt(i int) int {
	if i >= len(r.input) {
		return 0
	}
	return baseReverse[r.input[i]]
}

func (r *bitReader) readBits(n int) int {
	bits := 0
	for power := 1; power != 1<<n; power <<= 1 {
		resb := r.val & r.position
		r.position >>= 1
		if r.position == 0 {
			r.position = r.resetValue
			r.val = r.valueAt(r.index)
			r.index++
		}
		if resb > 0 {
			bits |= power
		}
	}
	return bits
}

// DecompressFromBase64 reverses CompressToBase64.
func DecompressFromBase64(input string) (string, error) {
	if input == "" {
		return "", ErrCorrupt
	}
	r := &bitReader{input: input, resetValue: 32, position: 32, index: 1}
	r.val = r.valueAt(0)

	dictionary := [][]uint16{{0}, {1}, {2}}
	enlargeIn := 4
	numBits := 3

	var c []uint16
	switch r.readBits(2) {
	case 0:
		c = []uint16{uint16(r.readBits(8))}
	case 1:
		c = []uint16{uint16(r.readBits(16))}
	case 2:
		return "", nil
	}
	dictionary = append(dictionary, c)
	w := c
	result := append([]uint16{}, c...)

	for {
		if r.index > len(input) {
			return "", ErrCorrupt
		}

		code := r.readBits(numBits)
		switch code {
		case 0, 1:
			size := 8
			if code == 1 {
				size = 16
			}
			dictionary = append(dictionary, []uint16{uint16(r.readBits(size))})
			code = len(dictionary) - 1
			enlargeIn--
		case 2:
			return string(utf16.Decode(result)), nil
		}

		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}

		var entry []uint16
		switch {
		case code < len(dictionary):
			entry = dictionary[code]
		case code == len(dictionary):
			entry = append(append([]uint16{}, w...), w[0])
		default:
			return "", ErrCorrupt
		}
		result = append(result, entry...)

		dictionary = append(dictionary, append(append([]uint16{}, w...), entry[0]))
		enlargeIn--
		w = entry

		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
}
