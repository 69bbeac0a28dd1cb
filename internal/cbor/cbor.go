// Package cbor decodes the narrow subset of CBOR used by solc metadata
// trailers: a single top-level map whose keys are text strings and whose
// values are either byte strings, text strings, or (for the ipfs/bzzr
// fields) byte strings. No example repo in the retrieved pack imports a
// CBOR library, so this is a bounded, purpose-built decoder rather than a
// general one — see DESIGN.md.
package cbor

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned for any input that isn't a well-formed map of
// the shape solc emits.
var ErrMalformed = errors.New("cbor: malformed metadata trailer")

// Value is either a []byte (major type 2) or a string (major type 3).
type Value struct {
	Bytes []byte
	Text  string
	IsStr bool
}

// DecodeMap decodes a single top-level CBOR map from b, returning the
// decoded key/value pairs and the number of bytes consumed.
func DecodeMap(b []byte) (map[string]Value, int, error) {
	d := &decoder{buf: b}
	major, count, err := d.readHeader()
	if err != nil {
		return nil, 0, err
	}
	if major != 5 {
		return nil, 0, fmt.Errorf("%w: expected map, got major type %d", ErrMalformed, major)
	}
	out := make(map[string]Value, count)
	for i := uint64(0); i < count; i++ {
		key, err := d.readTextString()
		if err != nil {
			return nil, 0, err
		}
		val, err := d.readValue()
		if err != nil {
			return nil, 0, err
		}
		out[key] = val
	}
	return out, d.pos, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readHeader() (major byte, count uint64, err error) {
	if d.pos >= len(d.buf) {
		return 0, 0, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	b := d.buf[d.pos]
	d.pos++
	major = b >> 5
	info := b & 0x1f
	switch {
	case info < 24:
		count = uint64(info)
	case info == 24:
		count, err = d.readUint(1)
	case info == 25:
		count, err = d.readUint(2)
	case info == 26:
		count, err = d.readUint(4)
	case info == 27:
		count, err = d.readUint(8)
	default:
		return 0, 0, fmt.Errorf("%w: unsupported length encoding 0x%x", ErrMalformed, info)
	}
	return major, count, err
}

func (d *decoder) readUint(n int) (uint64, error) {
	if d.pos+n > len(d.buf) {
		return 0, fmt.Errorf("%w: truncated length", ErrMalformed)
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(d.buf[d.pos+i])
	}
	d.pos += n
	return v, nil
}

func (d *decoder) readTextString() (string, error) {
	major, count, err := d.readHeader()
	if err != nil {
		return "", err
	}
	if major != 3 {
		return "", fmt.Errorf("%w: expected text string, got major type %d", ErrMalformed, major)
	}
	if d.pos+int(count) > len(d.buf) {
		return "", fmt.Errorf("%w: truncated text string", ErrMalformed)
	}
	s := string(d.buf[d.pos : d.pos+int(count)])
	d.pos += int(count)
	return s, nil
}

func (d *decoder) readValue() (Value, error) {
	start := d.pos
	major, count, err := d.readHeader()
	if err != nil {
		return Value{}, err
	}
	switch major {
	case 2: // byte string
		if d.pos+int(count) > len(d.buf) {
			return Value{}, fmt.Errorf("%w: truncated byte string", ErrMalformed)
		}
		b := d.buf[d.pos : d.pos+int(count)]
		d.pos += int(count)
		return Value{Bytes: b}, nil
	case 3: // text string
		if d.pos+int(count) > len(d.buf) {
			return Value{}, fmt.Errorf("%w: truncated text string", ErrMalformed)
		}
		s := string(d.buf[d.pos : d.pos+int(count)])
		d.pos += int(count)
		return Value{Text: s, IsStr: true}, nil
	default:
		d.pos = start
		return Value{}, fmt.Errorf("%w: unsupported value major type %d", ErrMalformed, major)
	}
}
