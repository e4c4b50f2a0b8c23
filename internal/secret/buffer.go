// Package secret holds credential material in mutable byte buffers that can be
// overwritten once they are no longer needed.
package secret

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"log/slog"
	"unicode/utf16"
	"unicode/utf8"
)

const redacted = "[redacted]"

// Buffer owns a byte slice holding secret material. A Buffer is not safe for
// concurrent use; callers that share one must serialize access.
type Buffer struct {
	b         []byte
	destroyed bool
}

// New takes ownership of b. The caller must not retain or modify b afterwards.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Copy returns a Buffer holding a private copy of b.
func Copy(b []byte) *Buffer {
	out := make([]byte, len(b))
	copy(out, b)
	return &Buffer{b: out}
}

// Bytes exposes the underlying slice. It is nil once the buffer is destroyed.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.destroyed {
		return nil
	}
	return b.b
}

func (b *Buffer) Len() int {
	if b == nil || b.destroyed {
		return 0
	}
	return len(b.b)
}

func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	if b.destroyed {
		return &Buffer{destroyed: true}
	}
	return Copy(b.b)
}

// Destroy overwrites the contents with zeros and releases the slice.
func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	Wipe(b.b)
	b.b = nil
	b.destroyed = true
}

func (b *Buffer) Destroyed() bool {
	return b == nil || b.destroyed
}

// Equal compares two buffers in constant time.
func (b *Buffer) Equal(other *Buffer) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other.Bytes()) == 1
}

func (b *Buffer) String() string {
	return redacted
}

func (b *Buffer) GoString() string {
	return redacted
}

func (b *Buffer) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

func (b *Buffer) MarshalJSON() ([]byte, error) {
	return nil, errors.New("secret buffer cannot be marshaled")
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	clear(b)
}

// Bytes is a decode-only JSON string target. Values are copied or unescaped
// straight from the input so token values never become immutable strings.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("secret value must be a JSON string")
	}

	raw := data[1 : len(data)-1]
	if bytes.IndexByte(raw, '\\') < 0 {
		out := make([]byte, len(raw))
		copy(out, raw)
		*b = out
		return nil
	}

	out, err := unescape(raw)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// unescape decodes the body of a JSON string into a fresh slice. The output is
// never longer than the input, so the slice is allocated once and wiped if
// the input turns out to be malformed.
func unescape(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	fail := func(msg string) ([]byte, error) {
		Wipe(out[:cap(out)])
		return nil, errors.New("secret value: " + msg)
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			if c < 0x20 || c == '"' {
				return fail("invalid character in string")
			}
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return fail("truncated escape")
		}
		switch raw[i] {
		case '"', '\\', '/':
			out = append(out, raw[i])
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			r, ok := hexRune(raw[i+1:])
			if !ok {
				return fail("invalid unicode escape")
			}
			i += 4
			if utf16.IsSurrogate(r) {
				r2, ok := hexRune(raw[min(i+3, len(raw)):])
				if ok && i+2 < len(raw) && raw[i+1] == '\\' && raw[i+2] == 'u' {
					if pair := utf16.DecodeRune(r, r2); pair != utf8.RuneError {
						r = pair
						i += 6
					} else {
						r = utf8.RuneError
					}
				} else {
					r = utf8.RuneError
				}
			}
			out = utf8.AppendRune(out, r)
		default:
			return fail("invalid escape")
		}
	}
	return out, nil
}

// hexRune reads four hex digits.
func hexRune(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	var r rune
	for _, c := range b[:4] {
		switch {
		case c >= '0' && c <= '9':
			c -= '0'
		case c >= 'a' && c <= 'f':
			c = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			c = c - 'A' + 10
		default:
			return 0, false
		}
		r = r<<4 | rune(c)
	}
	return r, true
}

// Buffer moves the decoded value into a Buffer and clears the receiver.
func (b *Bytes) Buffer() *Buffer {
	if b == nil {
		return New(nil)
	}
	out := New(*b)
	*b = nil
	return out
}

func (b Bytes) Wipe() {
	Wipe(b)
}

func (b Bytes) String() string {
	return redacted
}

func (b Bytes) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
