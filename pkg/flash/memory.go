package flash

import (
	"bytes"
	"fmt"
	"sync"
)

// Memory is a RAM-backed Device. Freshly created memory reads as erased.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

func NewMemory(size uint32) *Memory {
	return &Memory{
		data: bytes.Repeat([]byte{EraseFill}, int(size)),
	}
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *Memory) EraseSector(sector uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := sector * SectorSize
	if err := checkRange(m, addr, SectorSize); err != nil {
		return err
	}
	for i := addr; i < addr+SectorSize; i++ {
		m.data[i] = EraseFill
	}
	return nil
}

func (m *Memory) Write(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: write 0x%x+0x%x", ErrUnaligned, addr, len(data))
	}
	if err := checkRange(m, addr, len(data)); err != nil {
		return err
	}
	for i, b := range data {
		m.data[int(addr)+i] &= b
	}
	return nil
}

func (m *Memory) Read(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(m, addr, len(data)); err != nil {
		return err
	}
	copy(data, m.data[addr:])
	return nil
}

// Bytes returns the backing storage. Callers must not hold on to it across
// writes.
func (m *Memory) Bytes() []byte {
	return m.data
}
