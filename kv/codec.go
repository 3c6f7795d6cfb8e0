package kv

import (
	"errors"
	"strconv"
)

// Serializer converts values to and from bytes. Implementations must return
// an error (not garbage) when the data is not in their format, so the codec
// fallback chain can move on to the next serializer.
type Serializer interface {
	Dumps(v any) ([]byte, error)
	Loads(data []byte) (any, error)
}

// Compressor compresses and decompresses serialized payloads. Decompress
// must fail on data it did not produce so the fallback chain works.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Codec encodes values for storage and decodes them on the way out.
//
// Plain integers take a fast path: they are stored as their decimal text
// representation, unserialized and uncompressed, so the storage engine can
// increment them atomically. Everything else — including bools, which must
// never be coerced through the integer path — is serialized by the first
// serializer and compressed by the first compressor.
//
// Decoding attempts an integer parse first, then walks the decompressor and
// deserializer chains in declared order until one succeeds. The ordered
// chains allow live migration between formats: configure the new format
// first and the old one after it, and reads of old data keep working.
type Codec struct {
	serializers []Serializer
	compressors []Compressor
}

// NewCodec returns a codec with the given fallback chains. The first
// serializer and first compressor are used for writes; all of them are tried
// in order for reads. With no serializers configured, msgpack is used. With
// no compressors configured, values are stored uncompressed.
func NewCodec(serializers []Serializer, compressors []Compressor) *Codec {
	if len(serializers) == 0 {
		serializers = []Serializer{MsgpackSerializer{}}
	}
	return &Codec{serializers: serializers, compressors: compressors}
}

// DefaultCodec returns the default codec: msgpack, no compression.
func DefaultCodec() *Codec {
	return NewCodec(nil, nil)
}

// Encode converts a value to its stored byte representation.
func (c *Codec) Encode(v any) ([]byte, error) {
	if s, ok := intText(v); ok {
		return []byte(s), nil
	}
	data, err := c.serializers[0].Dumps(v)
	if err != nil {
		return nil, &CodecError{Op: "encode", Err: err}
	}
	if len(c.compressors) > 0 {
		data, err = c.compressors[0].Compress(data)
		if err != nil {
			return nil, &CodecError{Op: "encode", Err: err}
		}
	}
	return data, nil
}

// Decode converts a stored byte representation back to a value. Integer
// payloads come back as int64, or uint64 when the value does not fit.
func (c *Codec) Decode(data []byte) (any, error) {
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		return n, nil
	} else if errors.Is(err, strconv.ErrRange) {
		// The fast path stores uint64 values beyond the int64 range too.
		if u, uerr := strconv.ParseUint(string(data), 10, 64); uerr == nil {
			return u, nil
		}
	}
	data = c.decompress(data)
	var lastErr error
	for _, s := range c.serializers {
		v, err := s.Loads(data)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return nil, &CodecError{Op: "decode", Err: lastErr}
}

// decompress walks the compressor chain; if none recognizes the data it is
// returned unchanged, since compression may not have been configured when
// the value was written.
func (c *Codec) decompress(data []byte) []byte {
	for _, comp := range c.compressors {
		if out, err := comp.Decompress(data); err == nil {
			return out
		}
	}
	return data
}

// intText returns the decimal representation for plain integers. Note that
// Go's type system keeps bool out of here on its own; the explicit cases
// enumerate every integer kind so nothing else sneaks through.
func intText(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}
