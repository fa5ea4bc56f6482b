package eboot

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
)

// WordWriter is the narrow window onto the RTC memory region. Offsets are in
// bytes from the start of the region and word aligned.
type WordWriter interface {
	WriteWord(offset uint32, value uint32) error
}

// Persist writes the record into w word by word, replacing any previous one.
func (r *Record) Persist(w WordWriter) error {
	b, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	for off := 0; off < RecordSize; off += 4 {
		if err := w.WriteWord(uint32(off), binary.LittleEndian.Uint32(b[off:])); err != nil {
			return fmt.Errorf("could not write RTC word 0x%x: %w", RTCAddress+off, err)
		}
	}
	glog.Infof("Wrote eboot command: %s", r)
	return nil
}

func checkWord(offset uint32) error {
	if offset%4 != 0 || offset+4 > RecordSize {
		return fmt.Errorf("invalid RTC offset 0x%x", offset)
	}
	return nil
}

// Memory is a RAM-backed RTC region.
type Memory struct {
	mu     sync.Mutex
	data   [RecordSize]byte
	writes int
}

func (m *Memory) WriteWord(offset uint32, value uint32) error {
	if err := checkWord(offset); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	m.writes++
	return nil
}

// Bytes returns a copy of the region.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, RecordSize)
	copy(out, m.data[:])
	return out
}

// Writes returns how many words have been written so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// File is an RTC region kept in a file, so that it survives the simulator
// process like battery-backed memory survives a reset.
type File struct {
	Path string
}

func (f *File) WriteWord(offset uint32, value uint32) error {
	if err := checkWord(offset); err != nil {
		return err
	}
	fd, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer fd.Close()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	_, err = fd.WriteAt(b[:], int64(offset))
	return err
}

// Load reads and verifies the record currently in the file.
func (f *File) Load() (*Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
