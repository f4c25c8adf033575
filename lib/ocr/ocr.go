// Package ocr defines the text recognition capability used to read captcha
// images. Implementations live in the subpackages.
package ocr

import (
	"context"
	"errors"
)

// ErrNoResult is returned when the provider answered but recognized nothing.
var ErrNoResult = errors.New("ocr: no text recognized")

// Provider recognizes text in an image. Results are ranked, the most likely
// candidate comes first.
type Provider interface {
	Recognize(ctx context.Context, image []byte) ([]string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, image []byte) ([]string, error)

func (f ProviderFunc) Recognize(ctx context.Context, image []byte) ([]string, error) {
	return f(ctx, image)
}
