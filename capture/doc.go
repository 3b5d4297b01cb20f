// Package capture records LT-BUS frames as they cross a transport.
//
// Events are CBOR encoded with integer keys and appended to a file,
// one event after the other, so that a capture can be streamed back
// with a Reader while it is still being written.
package capture
