package kv

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackSerializer is the default serializer. Most Go types work out of the
// box: primitives, structs with exported fields, maps, slices, and pointers.
// Integers inside composite values decode as int64.
type MsgpackSerializer struct{}

var _ Serializer = MsgpackSerializer{}

func (MsgpackSerializer) Dumps(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Loads(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// JSONSerializer stores values as JSON. Useful as a fallback-chain entry when
// migrating away from JSON payloads, or when stored values must stay
// human-readable. Numbers decode as float64, per encoding/json.
type JSONSerializer struct{}

var _ Serializer = JSONSerializer{}

func (JSONSerializer) Dumps(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Loads(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
