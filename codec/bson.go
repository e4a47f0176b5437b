package codec

import (
	"errors"

	"gopkg.in/mgo.v2/bson"
)

// bsonCodec stores every value as the single field "v" of a BSON document,
// so scalars and slices encode as well as structs. Byte slices are stored
// as BSON binary.
type bsonCodec struct{}

type bsonEnvelope struct {
	V bson.Raw `bson:"v"`
}

func (bsonCodec) Name() string { return "bson" }

func (bsonCodec) Encode(v any) (b []byte, err error) {
	if err := checkAcyclic(v); err != nil {
		return nil, encodeErr("bson", err)
	}
	// mgo's bson panics on values it cannot represent
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, encodeErr("bson", panicErr(r))
		}
	}()
	b, err = bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, encodeErr("bson", err)
	}
	return b, nil
}

func (bsonCodec) Decode(data []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = decodeErr("bson", panicErr(r))
		}
	}()
	var env bsonEnvelope
	if err := bson.Unmarshal(data, &env); err != nil {
		return decodeErr("bson", err)
	}
	if env.V.Kind == 0 {
		return decodeErr("bson", errors.New("missing value field"))
	}
	if err := env.V.Unmarshal(v); err != nil {
		return decodeErr("bson", err)
	}
	return nil
}

func panicErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("bson: " + toString(r))
}

func toString(r any) string {
	if s, ok := r.(string); ok {
		return s
	}
	return "unrepresentable value"
}
