package codec

import "encoding/json"

// jsonCodec uses encoding/json. Byte slices travel as base64 strings.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	if err := checkAcyclic(v); err != nil {
		return nil, encodeErr("json", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, encodeErr("json", err)
	}
	return b, nil
}

func (jsonCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return decodeErr("json", err)
	}
	return nil
}
