package ports

// Codec translates between Go values and a wire representation. The
// transport layer provides a JSON implementation; plugins and hosts can
// supply their own as long as both sides agree.
type Codec interface {
	// Encode serializes v into wire bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes wire bytes into v.
	Decode(data []byte, v any) error

	// ContentType names the wire representation (e.g. "application/json").
	ContentType() string
}
