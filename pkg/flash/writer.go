package flash

import (
	"fmt"

	"github.com/golang/glog"
)

// Writer stages arbitrarily sized writes into sector-sized blocks, so that
// every call into the Device is SectorSize long and SectorSize aligned.
// The destination offset only advances after a block was programmed.
//
// The target region must already be erased. Any Device error is sticky: the
// transfer has to be restarted from scratch.
type Writer struct {
	dev    Device
	offset uint32
	buf    [SectorSize]byte
	n      int
	err    error
}

func NewWriter(dev Device, offset uint32) (*Writer, error) {
	if offset%SectorSize != 0 {
		return nil, fmt.Errorf("%w: writer offset 0x%x", ErrUnaligned, offset)
	}
	return &Writer{
		dev:    dev,
		offset: offset,
	}, nil
}

// Offset is the flash address the next full block will be programmed at.
func (w *Writer) Offset() uint32 {
	return w.offset
}

// Buffered is the number of staged bytes not yet programmed.
func (w *Writer) Buffered() int {
	return w.n
}

func (w *Writer) Write(data []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	written := 0
	for len(data) > 0 {
		n := copy(w.buf[w.n:], data)
		w.n += n
		data = data[n:]
		if w.n == SectorSize {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
		written += n
	}
	return written, nil
}

// Finish pads the staged tail with EraseFill and programs it.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	if w.n == 0 {
		return nil
	}
	for i := w.n; i < SectorSize; i++ {
		w.buf[i] = EraseFill
	}
	return w.flush()
}

func (w *Writer) flush() error {
	glog.V(1).Infof("Write 0x%x (%d bytes)", w.offset, SectorSize)
	if err := w.dev.Write(w.offset, w.buf[:]); err != nil {
		w.err = fmt.Errorf("could not write 0x%x: %w", w.offset, err)
		return w.err
	}
	w.offset += SectorSize
	w.n = 0
	return nil
}
