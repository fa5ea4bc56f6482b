// Package control implements the plug's TCP control channel: one length
// byte followed by that many bytes of JSON, in both directions.
package control

import (
	"errors"
	"fmt"
)

// MaxPayload is the largest payload a single length byte can describe.
const MaxPayload = 255

var ErrFrameTooLong = errors.New("control frame too long")

// EncodeFrame prefixes payload with its length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(payload))
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(len(payload)))
	return append(out, payload...), nil
}

// Framer reassembles frames from whatever pieces the transport delivers.
// It is passive: each Feed may carry part of a frame, exactly one, or
// several, and handle runs once per complete non-empty frame, in order.
// Empty frames (a lone zero byte, as sent after replies by stock devices)
// are skipped.
//
// The slice passed to handle is only valid during the call.
type Framer struct {
	buf    [1 + MaxPayload]byte
	n      int
	handle func(payload []byte)
}

func NewFramer(handle func(payload []byte)) *Framer {
	return &Framer{handle: handle}
}

func (f *Framer) Feed(data []byte) {
	for len(data) > 0 {
		if f.n == 0 {
			f.buf[0] = data[0]
			f.n = 1
			data = data[1:]
		}
		want := 1 + int(f.buf[0])
		c := copy(f.buf[f.n:want], data)
		f.n += c
		data = data[c:]
		if f.n == want {
			if want > 1 {
				f.handle(f.buf[1:want])
			}
			f.n = 0
		}
	}
}

// Pending is the number of bytes of an incomplete frame held so far.
func (f *Framer) Pending() int {
	return f.n
}
