package form

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var (
	// ErrInvalidEncoding is returned when a payload is not valid UTF-8.
	ErrInvalidEncoding = errors.New("payload is not valid UTF-8")

	// ErrMalformedPair is returned when a token has no '=' separator.
	ErrMalformedPair = errors.New("malformed form field")
)

// Decode parses a URL-encoded form body (key=value pairs joined by '&').
// Tokens are split on the first '=' and then unescaped, with '+' decoding to a
// space. A '%' not followed by two hex digits is kept as typed. Any token
// lacking '=' rejects the whole payload.
func Decode(payload []byte) (Fields, error) {
	if _, _, err := transform.Bytes(encoding.UTF8Validator, payload); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	var fields Fields
	for _, token := range strings.Split(string(payload), "&") {
		rawKey, rawValue, ok := strings.Cut(token, "=")
		if !ok {
			return Fields{}, fmt.Errorf("%w: %q has no '='", ErrMalformedPair, token)
		}

		fields.Set(unescape(rawKey), unescape(rawValue))
	}

	return fields, nil
}

// unescape decodes '+' and %XX runs. Invalid escapes pass through literally and
// byte sequences that do not form UTF-8 become U+FFFD.
func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
