package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/sankforever/gkcx/lib/ocr"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(Markers{})

	require.Equal(t, Outcome{Kind: OutcomeWrongCaptcha}, c.Classify(wrongPage))
	require.Equal(t, Outcome{Kind: OutcomePending}, c.Classify(pendingPage))
	require.Equal(t, Outcome{Kind: OutcomeSuccess, Body: successPage}, c.Classify(successPage))
	require.Equal(t, Outcome{Kind: OutcomeSuccess, Body: ""}, c.Classify(""))
}

func TestClassifyWrongCaptchaWins(t *testing.T) {
	c := NewClassifier(Markers{})
	body := "验证码错误 暂无录取信息"
	require.Equal(t, OutcomeWrongCaptcha, c.Classify(body).Kind)
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := NewClassifier(Markers{})
	for _, body := range []string{wrongPage, pendingPage, successPage} {
		require.Equal(t, c.Classify(body), c.Classify(body))
	}
}

func TestClassifyCustomMarkers(t *testing.T) {
	c := NewClassifier(Markers{Pending: "not yet"})
	require.Equal(t, OutcomePending, c.Classify("not yet").Kind)
	require.Equal(t, OutcomeSuccess, c.Classify(pendingPage).Kind)
	require.Equal(t, OutcomeWrongCaptcha, c.Classify(wrongPage).Kind)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		input    string
		expected string
		fails    bool
	}{
		{input: " AB12 \n", expected: "AB12"},
		{input: "ab12xyz", expected: "ab12"},
		{input: "a b 1 2", expected: "ab12"},
		{input: "验证码四", expected: "验证码四"},
		{input: "ab1", fails: true},
		{input: "   ", fails: true},
		{input: "", fails: true},
	}
	for _, c := range cases {
		code, err := Normalize(c.input)
		if c.fails {
			require.ErrorIs(t, err, ErrRecognition, c.input)
			continue
		}
		require.NoError(t, err, c.input)
		require.Equal(t, c.expected, code)
	}
}

func TestSolver(t *testing.T) {
	calls := 0
	solver := NewSolver(ocr.ProviderFunc(func(ctx context.Context, image []byte) ([]string, error) {
		calls++
		return []string{" x7Kp9 ", "other"}, nil
	}))
	code, err := solver.Recognize(context.Background(), []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "x7Kp", code)
	require.Equal(t, 1, calls)
}

func TestSolverFailures(t *testing.T) {
	empty := NewSolver(ocr.ProviderFunc(func(ctx context.Context, image []byte) ([]string, error) {
		return nil, nil
	}))
	_, err := empty.Recognize(context.Background(), nil)
	require.ErrorIs(t, err, ErrRecognition)
	require.ErrorIs(t, err, ocr.ErrNoResult)

	providerErr := errors.New("quota exceeded")
	failing := NewSolver(ocr.ProviderFunc(func(ctx context.Context, image []byte) ([]string, error) {
		return nil, providerErr
	}))
	_, err = failing.Recognize(context.Background(), nil)
	require.ErrorIs(t, err, ErrRecognition)
	require.ErrorIs(t, err, providerErr)
}

type failingEncoder struct{}

func (failingEncoder) Encode(string) (string, error) {
	return "", errors.New("encoder broke")
}

type countingEncoder struct {
	calls map[string]int
}

func (c *countingEncoder) Encode(plain string) (string, error) {
	c.calls[plain]++
	return "<" + plain + ">", nil
}

func TestFieldEncoderMemoizesStaticKeys(t *testing.T) {
	inner := &countingEncoder{calls: map[string]int{}}
	fields := NewFieldEncoder(inner, "id", "birthday")

	for _, code := range []string{"aaaa", "bbbb", "aaaa"} {
		encoded, err := fields.Encode(code)
		require.NoError(t, err)
		require.Equal(t, "<id>", encoded.Key1)
		require.Equal(t, "<birthday>", encoded.Key2)
		require.Equal(t, "<"+code+">", encoded.Key3)
	}
	require.Equal(t, 1, inner.calls["id"])
	require.Equal(t, 1, inner.calls["birthday"])
	require.Equal(t, 2, inner.calls["aaaa"])
}

func TestFieldEncoderFailure(t *testing.T) {
	fields := NewFieldEncoder(failingEncoder{}, "id", "birthday")
	_, err := fields.Encode("ab12")
	require.ErrorIs(t, err, ErrCodec)
}
