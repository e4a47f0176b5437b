package codec

import "github.com/golang/snappy"

type snappyCodec struct {
	inner Codec
}

// Snappy compresses the output of inner with Snappy block encoding.
func Snappy(inner Codec) Codec {
	return snappyCodec{inner: inner}
}

func (c snappyCodec) Name() string { return "snappy+" + c.inner.Name() }

func (c snappyCodec) Encode(v any) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, b), nil
}

func (c snappyCodec) Decode(data []byte, v any) error {
	b, err := snappy.Decode(nil, data)
	if err != nil {
		return decodeErr(c.Name(), err)
	}
	return c.inner.Decode(b, v)
}
