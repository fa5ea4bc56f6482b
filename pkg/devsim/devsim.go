// Package devsim runs the bootstrap firmware against files instead of a
// plug: a flash image, the RTC region and the SDK system parameters all
// live in one directory and survive a simulated reboot.
package devsim

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"howett.net/plist"

	"github.com/vesync-hijack/plugstrap/pkg/eboot"
	"github.com/vesync-hijack/plugstrap/pkg/flash"
	"github.com/vesync-hijack/plugstrap/pkg/upgrade"
)

// DefaultFlashSize matches the 4 MiB parts fitted to the plugs.
const DefaultFlashSize = 0x400000

// DefaultDir is where the simulated plug lives unless told otherwise.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "plugstrap", "device")
}

// Params is the simulated SDK system parameter sector.
type Params struct {
	UpgradeFlag   uint8  `plist:"UpgradeFlag"`
	RunningOffset uint32 `plist:"RunningOffset"`
	Boots         int    `plist:"Boots"`
}

type Device struct {
	Dir   string
	Flash *flash.File
	RTC   *eboot.File

	// OnReboot runs after a reboot has been recorded.
	OnReboot func()

	mu sync.Mutex
}

func Open(dir string, flashSize uint32) (*Device, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create device directory: %w", err)
	}
	f, err := flash.OpenFile(filepath.Join(dir, "flash.bin"), flashSize)
	if err != nil {
		return nil, err
	}
	d := &Device{
		Dir:   dir,
		Flash: f,
		RTC:   &eboot.File{Path: filepath.Join(dir, "rtc.bin")},
	}
	if _, err := os.Stat(d.paramsPath()); os.IsNotExist(err) {
		// Stock firmware runs from user1.
		if err := d.saveParams(&Params{RunningOffset: 0x1000}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) paramsPath() string {
	return filepath.Join(d.Dir, "params.plist")
}

func (d *Device) Params() (*Params, error) {
	data, err := os.ReadFile(d.paramsPath())
	if err != nil {
		return nil, fmt.Errorf("could not read system parameters: %w", err)
	}
	var p Params
	if _, err := plist.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("could not parse system parameters: %w", err)
	}
	return &p, nil
}

func (d *Device) saveParams(p *Params) error {
	data, err := plist.Marshal(p, plist.XMLFormat)
	if err != nil {
		return fmt.Errorf("could not encode system parameters: %w", err)
	}
	return os.WriteFile(d.paramsPath(), data, 0644)
}

func (d *Device) update(f func(p *Params)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.Params()
	if err != nil {
		return err
	}
	f(p)
	return d.saveParams(p)
}

func (d *Device) SetUpgradeFlag(flag upgrade.UpgradeFlag) error {
	glog.V(1).Infof("Upgrade flag %s", flag)
	return d.update(func(p *Params) {
		p.UpgradeFlag = uint8(flag)
	})
}

func (d *Device) RunningOffset() uint32 {
	p, err := d.Params()
	if err != nil {
		glog.Warningf("Assuming user1: %v", err)
		return 0x1000
	}
	return p.RunningOffset
}

// SetRunningOffset moves the simulated plug to another user partition.
func (d *Device) SetRunningOffset(offset uint32) error {
	return d.update(func(p *Params) {
		p.RunningOffset = offset
	})
}

func (d *Device) Reboot() error {
	if err := d.update(func(p *Params) {
		p.Boots++
	}); err != nil {
		return err
	}
	glog.Infof("Device rebooted")
	if d.OnReboot != nil {
		d.OnReboot()
	}
	return nil
}

func (d *Device) Close() error {
	var errs error
	if err := d.Flash.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("when closing flash: %w", err))
	}
	return errs
}
