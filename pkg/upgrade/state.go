package upgrade

import (
	"fmt"
	"strings"
)

// State is where an upgrade attempt currently is.
type State int

const (
	StateIdle State = iota
	StateProvisioning
	StateAwaitingTrigger
	StateDownloading
	StateFlashing
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateProvisioning:
		return "PROVISIONING"
	case StateAwaitingTrigger:
		return "AWAITING-TRIGGER"
	case StateDownloading:
		return "DOWNLOADING"
	case StateFlashing:
		return "FLASHING"
	case StateFinalizing:
		return "FINALIZING"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Strategy selects where the new image is written and how the bootloader
// learns about it.
type Strategy int

const (
	// StrategyRelocation stages the image high in flash and leaves an eboot
	// command to copy it over the active image on the next boot.
	StrategyRelocation Strategy = iota
	// StrategyDualPartition writes the image into whichever of user1/user2
	// is not running and sets the SDK upgrade flag.
	StrategyDualPartition
)

func (s Strategy) String() string {
	switch s {
	case StrategyRelocation:
		return "relocation"
	case StrategyDualPartition:
		return "dual-partition"
	}
	return "unknown"
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "relocation", "relocate":
		return StrategyRelocation, nil
	case "dual-partition", "dual":
		return StrategyDualPartition, nil
	}
	return 0, fmt.Errorf("invalid strategy %q, must be one of: relocation, dual-partition", s)
}

// TriggerKind selects what starts the download once the network is up.
type TriggerKind int

const (
	// TriggerDirect downloads from the provisioned server right away.
	TriggerDirect TriggerKind = iota
	// TriggerMulticast waits for a beacon on the multicast group and
	// downloads from its sender.
	TriggerMulticast
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerDirect:
		return "direct"
	case TriggerMulticast:
		return "multicast"
	}
	return "unknown"
}

func ParseTriggerKind(s string) (TriggerKind, error) {
	switch strings.ToLower(s) {
	case "direct":
		return TriggerDirect, nil
	case "multicast":
		return TriggerMulticast, nil
	}
	return 0, fmt.Errorf("invalid trigger %q, must be one of: direct, multicast", s)
}

// UpgradeFlag is the SDK boot selection flag used by the dual partition
// bootloader.
type UpgradeFlag uint8

const (
	FlagIdle   UpgradeFlag = 0x00
	FlagStart  UpgradeFlag = 0x01
	FlagFinish UpgradeFlag = 0x02
)

func (f UpgradeFlag) String() string {
	switch f {
	case FlagIdle:
		return "IDLE"
	case FlagStart:
		return "START"
	case FlagFinish:
		return "FINISH"
	}
	return "UNKNOWN"
}
