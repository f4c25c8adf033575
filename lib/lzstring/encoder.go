package lzstring

// Encoder transforms a plain form field into the representation the remote
// endpoint expects.
type Encoder interface {
	Encode(plain string) (string, error)
}

// Base64 is the Encoder backed by CompressToBase64.
type Base64 struct{}

func (Base64) Encode(plain string) (string, error) {
	return CompressToBase64(plain), nil
}

// Memoized caches the results of an inner Encoder. It is meant for values that
// stay constant for a whole run and is not safe for concurrent use.
type Memoized struct {
	inner Encoder
	cache map[string]string
}

func NewMemoized(inner Encoder) *Memoized {
	return &Memoized{inner: inner, cache: map[string]string{}}
}

func (m *Memoized) Encode(plain string) (string, error) {
	if out, ok := m.cache[plain]; ok {
		return out, nil
	}
	out, err := m.inner.Encode(plain)
	if err != nil {
		return "", err
	}
	m.cache[plain] = out
	return out, nil
}
