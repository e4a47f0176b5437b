package codec

import (
	jsoniter "github.com/json-iterator/go"
)

var iter = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonIterCodec produces the same text as jsonCodec through json-iterator.
// json-iterator does not detect cycles, so values are checked first.
type jsonIterCodec struct{}

func (jsonIterCodec) Name() string { return "jsoniter" }

func (jsonIterCodec) Encode(v any) ([]byte, error) {
	if err := checkAcyclic(v); err != nil {
		return nil, encodeErr("jsoniter", err)
	}
	b, err := iter.Marshal(v)
	if err != nil {
		return nil, encodeErr("jsoniter", err)
	}
	return b, nil
}

func (jsonIterCodec) Decode(data []byte, v any) error {
	if err := iter.Unmarshal(data, v); err != nil {
		return decodeErr("jsoniter", err)
	}
	return nil
}
