package lzstring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressToBase64Golden(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{input: "", expected: "Q==="},
		{input: "a", expected: "IZA="},
		{input: "aa", expected: "IbI="},
		{input: "360102200601011234", expected: "MwNgDAjGBM1m4oQtYAWIA==="},
		{input: "录取查询", expected: "qr6jXlSn5oR9FA=="},
		{input: "emoji 😀 x", expected: "KYWw9gVglgBIvBuAA9mAPIA="},
		{input: "tobeornottobeortobeornot", expected: "C4ewRgpiBOB2LFJGSpwUA==="},
	}

	for _, test := range cases {
		require.Equal(t, test.expected, CompressToBase64(test.input), "input %q", test.input)
	}
}

func TestCompressPadding(t *testing.T) {
	inputs := []string{"x", "hello", "2024123456789", "360102200601011234", "ab1Z", "录取查询"}
	for _, input := range inputs {
		out := CompressToBase64(input)
		require.Zero(t, len(out)%4, "output %q for %q is not padded", out, input)
		require.Regexp(t, `^[A-Za-z0-9+/]+=*$`, out)
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"a",
		"aa",
		"abababababab",
		"hello, world",
		"2024123456789",
		"360102200601011234",
		"tobeornottobeortobeornot",
		"暂无录取信息",
		"emoji 😀 surrogate pairs 😀😀",
		"ab1Z",
	}
	for _, input := range inputs {
		compressed := CompressToBase64(input)
		out, err := DecompressFromBase64(compressed)
		require.NoError(t, err, "input %q", input)
		require.Equal(t, input, out)
	}
}

func TestDecompressEmpty(t *testing.T) {
	out, err := DecompressFromBase64("Q===")
	require.NoError(t, err)
	require.Equal(t, "", out)

	_, err = DecompressFromBase64("")
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDeterministic(t *testing.T) {
	require.Equal(t, CompressToBase64("K3y-0ne"), CompressToBase64("K3y-0ne"))
}

type countingEncoder struct {
	calls int
	err   error
}

func (c *countingEncoder) Encode(plain string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "enc:" + plain, nil
}

func TestMemoized(t *testing.T) {
	inner := &countingEncoder{}
	m := NewMemoized(inner)

	for i := 0; i < 3; i++ {
		out, err := m.Encode("static")
		require.NoError(t, err)
		require.Equal(t, "enc:static", out)
	}
	require.Equal(t, 1, inner.calls)

	_, err := m.Encode("other")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestMemoizedDoesNotCacheErrors(t *testing.T) {
	failure := errors.New("runtime unavailable")
	inner := &countingEncoder{err: failure}
	m := NewMemoized(inner)

	_, err := m.Encode("static")
	require.ErrorIs(t, err, failure)
	_, err = m.Encode("static")
	require.ErrorIs(t, err, failure)
	require.Equal(t, 2, inner.calls)
}

func TestBase64Encoder(t *testing.T) {
	var enc Encoder = Base64{}
	out, err := enc.Encode("a")
	require.NoError(t, err)
	require.Equal(t, "IZA=", out)
}
