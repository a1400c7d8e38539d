package host

import (
	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Buffer is an owned response buffer handed to the host. Its backing
// memory stays valid until the host releases it through Bridge.FreeBuffer
// and must be released exactly once.
//
// ErrorCode carries the boundary error code for the call that produced
// the buffer; 0 means success. Error buffers still own their (possibly
// empty) payload and must be released like any other.
type Buffer struct {
	data []byte
	id   uint64
	code derrors.Code
}

// Bytes returns the buffer contents. The slice aliases the buffer's
// backing memory and is invalid after release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the capacity of the backing allocation. Release-side
// validation uses the arena's record, not this value.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// ErrorCode returns the boundary code for the producing call, 0 on
// success.
func (b *Buffer) ErrorCode() derrors.Code {
	return b.code
}

// IsError reports whether the producing call failed.
func (b *Buffer) IsError() bool {
	return b.code != 0
}
