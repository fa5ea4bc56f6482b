// Package eboot builds the command block the eboot second stage bootloader
// reads from RTC memory on reset.
package eboot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

const (
	// Magic identifies a command block. The low 12 bits are reserved for a
	// version and ignored by the bootloader.
	Magic     uint32 = 0xeb001000
	MagicMask uint32 = 0xfffff000

	// NumArgs is the number of argument words in a command block.
	NumArgs = 29
	// RecordSize is the on-wire size of a command block.
	RecordSize = 128
	// RTCAddress is where the bootloader looks for the block.
	RTCAddress = 0x60001200
)

type Action uint32

const (
	// ActionCopyRaw copies Args[2] bytes from flash offset Args[0] to
	// Args[1] before booting.
	ActionCopyRaw Action = 0x00000001
	ActionLoadApp Action = 0xffffffff
)

func (a Action) String() string {
	switch a {
	case ActionCopyRaw:
		return "COPY_RAW"
	case ActionLoadApp:
		return "LOAD_APP"
	}
	return fmt.Sprintf("UNKNOWN(0x%08x)", uint32(a))
}

var (
	ErrTooManyArgs = errors.New("too many command arguments")
	ErrBadMagic    = errors.New("not an eboot command")
	ErrBadChecksum = errors.New("eboot command checksum mismatch")
	ErrShortRecord = errors.New("eboot command too short")
)

// Record is the command block as laid out in RTC memory, little endian.
type Record struct {
	Magic  uint32
	Action Action
	Args   [NumArgs]uint32
	CRC    uint32
}

// crcParameters is CRC-32/MPEG-2: MSB first, no reflection, no final xor.
var crcParameters = &crc.Parameters{
	Width:      32,
	Polynomial: 0x04c11db7,
	Init:       0xffffffff,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0,
}

// Checksum computes the bootloader's CRC over data.
func Checksum(data []byte) uint32 {
	h := crc.NewHash(crcParameters)
	h.Write(data)
	return h.CRC32()
}

// New builds a sealed record. Missing arguments are zero.
func New(action Action, args ...uint32) (*Record, error) {
	if len(args) > NumArgs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyArgs, len(args), NumArgs)
	}
	r := &Record{
		Magic:  Magic,
		Action: action,
	}
	copy(r.Args[:], args)
	b, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}
	r.CRC = Checksum(b[:RecordSize-4])
	return r, nil
}

func (r *Record) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("could not serialize command: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a record and verifies its magic and checksum.
func Parse(data []byte) (*Record, error) {
	if len(data) < RecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}
	var r Record
	if err := binary.Read(bytes.NewReader(data[:RecordSize]), binary.LittleEndian, &r); err != nil {
		return nil, fmt.Errorf("could not read command: %w", err)
	}
	if r.Magic&MagicMask != Magic {
		return nil, ErrBadMagic
	}
	if want := Checksum(data[:RecordSize-4]); r.CRC != want {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrBadChecksum, r.CRC, want)
	}
	return &r, nil
}

func (r *Record) String() string {
	switch r.Action {
	case ActionCopyRaw:
		return fmt.Sprintf("%s src=0x%x dst=0x%x size=0x%x crc=0x%08x", r.Action, r.Args[0], r.Args[1], r.Args[2], r.CRC)
	}
	return fmt.Sprintf("%s crc=0x%08x", r.Action, r.CRC)
}
