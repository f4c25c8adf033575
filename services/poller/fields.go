package poller

import (
	"errors"
	"fmt"

	"github.com/sankforever/gkcx/lib/lzstring"
	"github.com/sankforever/gkcx/lib/scrapers/gkcf"
)

// ErrCodec is returned when the field encoder fails, this aborts the run.
var ErrCodec = errors.New("field encoding failed")

// FieldEncoder builds the encoded login form. The two static keys are
// encoded once per run, the captcha code is encoded on every call.
type FieldEncoder struct {
	key1, key2 string
	static     lzstring.Encoder
	dynamic    lzstring.Encoder
}

func NewFieldEncoder(encoder lzstring.Encoder, key1, key2 string) FieldEncoder {
	return FieldEncoder{
		key1:    key1,
		key2:    key2,
		static:  lzstring.NewMemoized(encoder),
		dynamic: encoder,
	}
}

func (f FieldEncoder) Encode(code string) (gkcf.LoginFields, error) {
	key1, err := f.static.Encode(f.key1)
	if err != nil {
		return gkcf.LoginFields{}, fmt.Errorf("%w: key1: %w", ErrCodec, err)
	}
	key2, err := f.static.Encode(f.key2)
	if err != nil {
		return gkcf.LoginFields{}, fmt.Errorf("%w: key2: %w", ErrCodec, err)
	}
	key3, err := f.dynamic.Encode(code)
	if err != nil {
		return gkcf.LoginFields{}, fmt.Errorf("%w: key3: %w", ErrCodec, err)
	}
	return gkcf.LoginFields{Key1: key1, Key2: key2, Key3: key3}, nil
}
