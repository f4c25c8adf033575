package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sankforever/gkcx/lib/ocr"
)

// CodeLength is the fixed number of characters in a portal captcha.
const CodeLength = 4

// ErrRecognition means a captcha could not be turned into a usable code.
// It is never fatal, the captcha is simply discarded.
var ErrRecognition = errors.New("captcha recognition failed")

// Recognizer turns a captcha image into a code.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Solver is the Recognizer backed by an ocr.Provider.
type Solver struct {
	provider ocr.Provider
}

func NewSolver(provider ocr.Provider) Solver {
	return Solver{provider: provider}
}

// Normalize keeps the first CodeLength non-whitespace characters of an
// ocr result.
func Normalize(text string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	if utf8.RuneCountInString(cleaned) < CodeLength {
		return "", fmt.Errorf("%w: %q has fewer than %d characters", ErrRecognition, text, CodeLength)
	}
	return string([]rune(cleaned)[:CodeLength]), nil
}

// Recognize calls the ocr provider once and normalizes its top result.
func (s Solver) Recognize(ctx context.Context, image []byte) (string, error) {
	candidates, err := s.provider.Recognize(ctx, image)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %w", ErrRecognition, ocr.ErrNoResult)
	}
	return Normalize(candidates[0])
}
