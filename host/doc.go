// Package host implements the plugin boundary: the Bridge owns opaque
// plugin handles and exposes the entry points hosts call to create,
// initialize, invoke, and shut down plugins.
//
// Memory crossing the boundary follows an explicit ownership contract.
// Every response is an owned Buffer registered with an internal arena;
// the host must release each buffer exactly once through FreeBuffer, and
// a double release is reported as an error rather than corrupting state.
//
// No error or panic ever unwinds through a Bridge entry point: failures
// come back as error buffers or error returns carrying stable numeric
// codes.
package host
