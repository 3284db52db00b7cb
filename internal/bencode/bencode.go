// Package bencode implements the BitTorrent metadata serialization format.
package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Decode limits. Inputs that exceed them are rejected as malformed rather
// than allowed to exhaust memory or stack.
const (
	maxDepth     = 64
	maxTokens    = 2_000_000
	maxIntDigits = 20
)

var (
	ErrMalformed   = errors.New("malformed bencode data")
	ErrDepthLimit  = errors.New("bencode nesting depth limit exceeded")
	ErrTokenLimit  = errors.New("bencode token limit exceeded")
	ErrTrailing    = errors.New("trailing data after bencode value")
	ErrMissingInfo = errors.New("metainfo has no info dictionary")
)

// Kind discriminates the four bencode value types.
type Kind int

const (
	KindInteger Kind = iota
	KindBytes
	KindList
	KindDict
)

// Value is a decoded bencode value.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  map[string]Value
}

// Integer returns an integer Value.
func Integer(n int64) Value { return Value{Kind: KindInteger, Int: n} }

// String returns a byte-string Value.
func String(s string) Value { return Value{Kind: KindBytes, Bytes: []byte(s)} }

type decoder struct {
	data   []byte
	pos    int
	tokens int
}

// Decode parses a complete bencode value from data. The entire buffer must
// be consumed; trailing bytes are an error.
func Decode(data []byte) (Value, error) {
	d := &decoder{data: data}
	v, err := d.value(0)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(data) {
		return Value{}, ErrTrailing
	}
	return v, nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrDepthLimit
	}
	d.tokens++
	if d.tokens > maxTokens {
		return Value{}, ErrTokenLimit
	}
	if d.pos >= len(d.data) {
		return Value{}, fmt.Errorf("%w: unexpected end of input", ErrMalformed)
	}

	switch c := d.data[d.pos]; {
	case c == 'i':
		return d.integer()
	case c >= '0' && c <= '9':
		b, err := d.byteString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBytes, Bytes: b}, nil
	case c == 'l':
		return d.list(depth)
	case c == 'd':
		return d.dict(depth)
	default:
		return Value{}, fmt.Errorf("%w: unexpected byte %q at offset %d", ErrMalformed, c, d.pos)
	}
}

func (d *decoder) integer() (Value, error) {
	d.pos++ // consume 'i'
	end := bytes.IndexByte(d.data[d.pos:], 'e')
	if end < 0 {
		return Value{}, fmt.Errorf("%w: unterminated integer", ErrMalformed)
	}
	digits := d.data[d.pos : d.pos+end]
	if len(digits) == 0 || len(digits) > maxIntDigits {
		return Value{}, fmt.Errorf("%w: integer length %d out of range", ErrMalformed, len(digits))
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid integer %q", ErrMalformed, digits)
	}
	d.pos += end + 1
	return Value{Kind: KindInteger, Int: n}, nil
}

func (d *decoder) byteString() ([]byte, error) {
	colon := bytes.IndexByte(d.data[d.pos:], ':')
	if colon < 0 || colon > maxIntDigits {
		return nil, fmt.Errorf("%w: invalid string length prefix", ErrMalformed)
	}
	length, err := strconv.Atoi(string(d.data[d.pos : d.pos+colon]))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: invalid string length", ErrMalformed)
	}
	start := d.pos + colon + 1
	if start+length > len(d.data) {
		return nil, fmt.Errorf("%w: string length %d exceeds input", ErrMalformed, length)
	}
	d.pos = start + length
	return d.data[start : start+length], nil
}

func (d *decoder) list(depth int) (Value, error) {
	d.pos++ // consume 'l'
	v := Value{Kind: KindList}
	for {
		if d.pos >= len(d.data) {
			return Value{}, fmt.Errorf("%w: unterminated list", ErrMalformed)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return v, nil
		}
		item, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		v.List = append(v.List, item)
	}
}

func (d *decoder) dict(depth int) (Value, error) {
	d.pos++ // consume 'd'
	v := Value{Kind: KindDict, Dict: make(map[string]Value)}
	for {
		if d.pos >= len(d.data) {
			return Value{}, fmt.Errorf("%w: unterminated dictionary", ErrMalformed)
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return v, nil
		}
		d.tokens++
		if d.tokens > maxTokens {
			return Value{}, ErrTokenLimit
		}
		key, err := d.byteString()
		if err != nil {
			return Value{}, err
		}
		val, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		v.Dict[string(key)] = val
	}
}

// Encode serializes a Value in canonical form. Dictionary keys are emitted
// in lexicographic byte order regardless of map iteration order, so
// re-encoding a decoded dictionary reproduces the bytes the info-hash was
// computed over.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.Bytes()
}

func encode(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindInteger:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case KindBytes:
		buf.WriteString(strconv.Itoa(len(v.Bytes)))
		buf.WriteByte(':')
		buf.Write(v.Bytes)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.List {
			encode(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		keys := make([]string, 0, len(v.Dict))
		for k := range v.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('d')
		for _, k := range keys {
			buf.WriteString(strconv.Itoa(len(k)))
			buf.WriteByte(':')
			buf.WriteString(k)
			encode(buf, v.Dict[k])
		}
		buf.WriteByte('e')
	}
}
