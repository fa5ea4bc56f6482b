// Package flash models the SPI NOR flash of the plug: sector erase, aligned
// programming and the buffered writer that streams firmware into it.
package flash

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/exp/constraints"
)

const (
	// SectorSize is the minimum erasable unit. The writer also programs in
	// units of this size.
	SectorSize = 4096
	// EraseFill is the value of every byte of an erased sector.
	EraseFill byte = 0xff
)

var (
	ErrUnaligned  = errors.New("unaligned flash access")
	ErrOutOfRange = errors.New("flash access out of range")
)

// Device is the raw flash chip. Write follows NOR semantics: it can only
// clear bits, so a region has to be erased before it is programmed.
type Device interface {
	EraseSector(sector uint32) error
	Write(addr uint32, data []byte) error
	Read(addr uint32, data []byte) error
	Size() uint32
}

// AlignUp rounds v up to the next multiple of align.
func AlignUp[T constraints.Integer](v, align T) T {
	return (v + align - 1) / align * align
}

// Sectors returns the number of sectors spanned by n bytes.
func Sectors(n uint32) uint32 {
	return AlignUp(n, SectorSize) / SectorSize
}

func checkRange(dev Device, addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(dev.Size()) {
		return fmt.Errorf("%w: 0x%x+0x%x > 0x%x", ErrOutOfRange, addr, n, dev.Size())
	}
	return nil
}

// EraseRange erases every sector spanned by length bytes starting at offset,
// in ascending order. It stops at the first failing sector.
func EraseRange(dev Device, offset, length uint32) error {
	if offset%SectorSize != 0 {
		return fmt.Errorf("%w: erase offset 0x%x", ErrUnaligned, offset)
	}
	if err := checkRange(dev, offset, int(AlignUp(length, SectorSize))); err != nil {
		return err
	}
	first := offset / SectorSize
	for sector := first; sector < first+Sectors(length); sector++ {
		glog.Infof("Erase sector %d", sector)
		if err := dev.EraseSector(sector); err != nil {
			return fmt.Errorf("could not erase sector %d: %w", sector, err)
		}
	}
	return nil
}
