package upgrade

import (
	"time"
)

const (
	DefaultHTTPPort = 17273
	// DefaultMulticastGroup is where trigger beacons are sent.
	DefaultMulticastGroup = "234.100.100.100:7001"
)

// Partition is a flash region an image can be written to, and the path the
// image for it is served at.
type Partition struct {
	Offset uint32
	Size   uint32
	Path   string
}

type Config struct {
	Strategy Strategy
	Trigger  TriggerKind

	HTTPPort       int
	MulticastGroup string

	ProvisionTimeout time.Duration
	TriggerTimeout   time.Duration
	ReceiveTimeout   time.Duration
	Backoff          time.Duration

	// Relocation: the image is staged in Staging, then copied to
	// ActiveOffset by the bootloader.
	Staging      Partition
	ActiveOffset uint32
	// InstallBootloader replaces the bootloader sector with the first
	// sector of the staged image before rebooting.
	InstallBootloader bool

	// Dual partition layout.
	User1 Partition
	User2 Partition
}

func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyRelocation,
		Trigger:          TriggerDirect,
		HTTPPort:         DefaultHTTPPort,
		MulticastGroup:   DefaultMulticastGroup,
		ProvisionTimeout: 5 * time.Minute,
		TriggerTimeout:   5 * time.Minute,
		ReceiveTimeout:   10 * time.Second,
		Backoff:          time.Second,
		Staging: Partition{
			Offset: 0x200000,
			Size:   0x100000,
			Path:   "/firmware.bin",
		},
		ActiveOffset: 0,
		User1: Partition{
			Offset: 0x000000,
			Size:   0x081000,
			Path:   "/firmware.bin",
		},
		User2: Partition{
			Offset: 0x081000,
			Size:   0x07f000,
			Path:   "/user2.bin",
		},
	}
}

// InactivePartition returns the dual partition slot that does not contain
// running.
func (c *Config) InactivePartition(running uint32) Partition {
	if running < c.User2.Offset {
		return c.User2
	}
	return c.User1
}
