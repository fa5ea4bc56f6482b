package flash

import (
	"bytes"
	"fmt"
	"os"
	"sync"
)

// File is a Device backed by a flash image on disk. It is what the simulator
// boots from, so the image survives a simulated reboot.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size uint32
}

// OpenFile opens or creates an image of the given size. Missing bytes at the
// end of an existing, shorter image are filled as erased.
func OpenFile(path string, size uint32) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open flash image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat flash image: %w", err)
	}
	if cur := st.Size(); cur < int64(size) {
		fill := bytes.Repeat([]byte{EraseFill}, int(int64(size)-cur))
		if _, err := f.WriteAt(fill, cur); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not extend flash image: %w", err)
		}
	}
	return &File{f: f, size: size}, nil
}

func (d *File) Size() uint32 {
	return d.size
}

func (d *File) EraseSector(sector uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	addr := sector * SectorSize
	if err := checkRange(d, addr, SectorSize); err != nil {
		return err
	}
	_, err := d.f.WriteAt(bytes.Repeat([]byte{EraseFill}, SectorSize), int64(addr))
	return err
}

func (d *File) Write(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: write 0x%x+0x%x", ErrUnaligned, addr, len(data))
	}
	if err := checkRange(d, addr, len(data)); err != nil {
		return err
	}
	cur := make([]byte, len(data))
	if _, err := d.f.ReadAt(cur, int64(addr)); err != nil {
		return err
	}
	for i, b := range data {
		cur[i] &= b
	}
	_, err := d.f.WriteAt(cur, int64(addr))
	return err
}

func (d *File) Read(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange(d, addr, len(data)); err != nil {
		return err
	}
	_, err := d.f.ReadAt(data, int64(addr))
	return err
}

func (d *File) Close() error {
	return d.f.Close()
}
