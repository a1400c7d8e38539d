package wireformat

import (
	"encoding/binary"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// BinaryVersion is the current version of every binary message layout.
// It occupies the first byte of each struct so layouts can evolve without
// ambiguity.
const BinaryVersion = 1

// Binary message ids. Like error codes, these are boundary contract and
// must never be renumbered.
const (
	// MsgKeyQuery is the binary twin of the "kv.get" JSON type tag.
	MsgKeyQuery uint32 = 1

	// MsgPing is a minimal liveness message.
	MsgPing uint32 = 2
)

// Fixed layout sizes in bytes. All integers are little-endian.
const (
	KeyQueryRequestSize  = 76
	KeyQueryResponseSize = 80
	PingRequestSize      = 8
	PingResponseSize     = 8

	keyCapacity = 64
)

// KeyQueryRequest is a fixed-layout key lookup request.
//
// Layout: version u8, reserved [3]u8, key [64]u8, key_len u32, flags u32.
type KeyQueryRequest struct {
	Version uint8
	Key     [keyCapacity]byte
	KeyLen  uint32
	Flags   uint32
}

// NewKeyQueryRequest builds a request for the given key. Keys longer than
// the fixed buffer are rejected, never truncated.
func NewKeyQueryRequest(key string, flags uint32) (*KeyQueryRequest, error) {
	if len(key) > keyCapacity {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"key length %d exceeds buffer capacity %d", len(key), keyCapacity)
	}
	r := &KeyQueryRequest{Version: BinaryVersion, KeyLen: uint32(len(key)), Flags: flags}
	copy(r.Key[:], key)
	return r, nil
}

// KeyString returns the key as a string, bounded by KeyLen.
func (r *KeyQueryRequest) KeyString() string {
	n := r.KeyLen
	if n > keyCapacity {
		n = keyCapacity
	}
	return string(r.Key[:n])
}

// MarshalBinary encodes the request into its fixed 76-byte layout.
func (r *KeyQueryRequest) MarshalBinary() ([]byte, error) {
	if r.KeyLen > keyCapacity {
		return nil, derrors.Newf(derrors.CodeSerialization,
			"key_len %d exceeds buffer capacity %d", r.KeyLen, keyCapacity)
	}
	buf := make([]byte, KeyQueryRequestSize)
	buf[0] = r.Version
	copy(buf[4:4+keyCapacity], r.Key[:])
	binary.LittleEndian.PutUint32(buf[68:72], r.KeyLen)
	binary.LittleEndian.PutUint32(buf[72:76], r.Flags)
	return buf, nil
}

// UnmarshalBinary decodes a request, validating the version byte, the
// total size, and the embedded key length before any copy.
func (r *KeyQueryRequest) UnmarshalBinary(data []byte) error {
	if err := checkBinaryHeader(data, KeyQueryRequestSize, true); err != nil {
		return err
	}
	keyLen := binary.LittleEndian.Uint32(data[68:72])
	if keyLen > keyCapacity {
		return derrors.Newf(derrors.CodeSerialization,
			"key_len %d exceeds buffer capacity %d", keyLen, keyCapacity)
	}
	r.Version = data[0]
	copy(r.Key[:], data[4:4+keyCapacity])
	r.KeyLen = keyLen
	r.Flags = binary.LittleEndian.Uint32(data[72:76])
	return nil
}

// KeyQueryResponse is the fixed-layout reply to a KeyQueryRequest.
//
// Layout: version u8, reserved [3]u8, value [64]u8, value_len u32,
// ttl_seconds u32, cache_hit u8, padding [3]u8. A response buffer may
// carry a variable payload after the fixed struct; decoding captures it
// in Trailing.
type KeyQueryResponse struct {
	Version    uint8
	Value      [keyCapacity]byte
	ValueLen   uint32
	TTLSeconds uint32
	CacheHit   bool
	Trailing   []byte
}

// NewKeyQueryResponse builds a response carrying the given value.
func NewKeyQueryResponse(value string, ttlSeconds uint32, cacheHit bool) (*KeyQueryResponse, error) {
	if len(value) > keyCapacity {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"value length %d exceeds buffer capacity %d", len(value), keyCapacity)
	}
	r := &KeyQueryResponse{
		Version:    BinaryVersion,
		ValueLen:   uint32(len(value)),
		TTLSeconds: ttlSeconds,
		CacheHit:   cacheHit,
	}
	copy(r.Value[:], value)
	return r, nil
}

// ValueString returns the value as a string, bounded by ValueLen.
func (r *KeyQueryResponse) ValueString() string {
	n := r.ValueLen
	if n > keyCapacity {
		n = keyCapacity
	}
	return string(r.Value[:n])
}

// MarshalBinary encodes the response into its fixed 80-byte layout,
// appending any trailing payload.
func (r *KeyQueryResponse) MarshalBinary() ([]byte, error) {
	if r.ValueLen > keyCapacity {
		return nil, derrors.Newf(derrors.CodeSerialization,
			"value_len %d exceeds buffer capacity %d", r.ValueLen, keyCapacity)
	}
	buf := make([]byte, KeyQueryResponseSize, KeyQueryResponseSize+len(r.Trailing))
	buf[0] = r.Version
	copy(buf[4:4+keyCapacity], r.Value[:])
	binary.LittleEndian.PutUint32(buf[68:72], r.ValueLen)
	binary.LittleEndian.PutUint32(buf[72:76], r.TTLSeconds)
	if r.CacheHit {
		buf[76] = 1
	}
	return append(buf, r.Trailing...), nil
}

// UnmarshalBinary decodes a response, validating version, size, and the
// embedded value length before any copy. Bytes past the fixed struct are
// retained as the trailing payload.
func (r *KeyQueryResponse) UnmarshalBinary(data []byte) error {
	if err := checkBinaryHeader(data, KeyQueryResponseSize, false); err != nil {
		return err
	}
	valueLen := binary.LittleEndian.Uint32(data[68:72])
	if valueLen > keyCapacity {
		return derrors.Newf(derrors.CodeSerialization,
			"value_len %d exceeds buffer capacity %d", valueLen, keyCapacity)
	}
	r.Version = data[0]
	copy(r.Value[:], data[4:4+keyCapacity])
	r.ValueLen = valueLen
	r.TTLSeconds = binary.LittleEndian.Uint32(data[72:76])
	r.CacheHit = data[76] == 1
	if len(data) > KeyQueryResponseSize {
		r.Trailing = append([]byte(nil), data[KeyQueryResponseSize:]...)
	} else {
		r.Trailing = nil
	}
	return nil
}

// PingRequest is a minimal fixed-layout message used for liveness checks.
//
// Layout: version u8, reserved [3]u8, sequence u32.
type PingRequest struct {
	Version  uint8
	Sequence uint32
}

// MarshalBinary encodes the ping request.
func (r *PingRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PingRequestSize)
	buf[0] = r.Version
	binary.LittleEndian.PutUint32(buf[4:8], r.Sequence)
	return buf, nil
}

// UnmarshalBinary decodes the ping request.
func (r *PingRequest) UnmarshalBinary(data []byte) error {
	if err := checkBinaryHeader(data, PingRequestSize, true); err != nil {
		return err
	}
	r.Version = data[0]
	r.Sequence = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

// PingResponse echoes the request's sequence number.
//
// Layout: version u8, reserved [3]u8, sequence u32.
type PingResponse struct {
	Version  uint8
	Sequence uint32
}

// MarshalBinary encodes the ping response.
func (r *PingResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PingResponseSize)
	buf[0] = r.Version
	binary.LittleEndian.PutUint32(buf[4:8], r.Sequence)
	return buf, nil
}

// UnmarshalBinary decodes the ping response.
func (r *PingResponse) UnmarshalBinary(data []byte) error {
	if err := checkBinaryHeader(data, PingResponseSize, false); err != nil {
		return err
	}
	r.Version = data[0]
	r.Sequence = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

// checkBinaryHeader validates the version byte and size shared by all
// fixed-layout messages. Requests must match their declared size exactly;
// responses may be longer when they carry a trailing payload, so exact is
// false for them. Nothing is ever shorter than its fixed size.
func checkBinaryHeader(data []byte, size int, exact bool) error {
	if len(data) == 0 {
		return derrors.New(derrors.CodeSerialization, "empty binary message")
	}
	if data[0] != BinaryVersion {
		return derrors.Newf(derrors.CodeSerialization,
			"unsupported binary message version %d (expected %d)", data[0], BinaryVersion)
	}
	if len(data) < size {
		return derrors.Newf(derrors.CodeSerialization,
			"binary message truncated: %d bytes, expected at least %d", len(data), size)
	}
	if exact && len(data) != size {
		return derrors.Newf(derrors.CodeSerialization,
			"binary message oversized: %d bytes, expected exactly %d", len(data), size)
	}
	return nil
}
