// Package codec converts application values to and from the bytes stored in
// the grid. Codecs are stateless and safe for concurrent use. A value must be
// read back with the codec that wrote it.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEncode = errors.New("encode failed")
	ErrDecode = errors.New("decode failed")
	ErrCycle  = errors.New("value contains a reference cycle")
)

// Codec is the serialization contract used by collection handles.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	// Decode fills the value pointed to by v.
	Decode(data []byte, v any) error
}

var (
	JSON     Codec = jsonCodec{}
	JSONIter Codec = jsonIterCodec{}
	BSON     Codec = bsonCodec{}
)

// Lookup resolves a codec by name. A "snappy+" prefix wraps the named codec
// with Snappy compression, e.g. "snappy+json".
func Lookup(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if inner, ok := strings.CutPrefix(name, "snappy+"); ok {
		c, err := Lookup(inner)
		if err != nil {
			return nil, err
		}
		return Snappy(c), nil
	}
	switch name {
	case "json", "":
		return JSON, nil
	case "jsoniter":
		return JSONIter, nil
	case "bson":
		return BSON, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

func encodeErr(codec string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEncode, codec, err)
}

func decodeErr(codec string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, codec, err)
}
