// Package upgrade is the plug's upgrade task: get on a network, wait for a
// trigger, pull a firmware image over HTTP into flash, tell the bootloader
// about it and reboot. Any failure leaves the running firmware alone and
// starts over after a backoff.
package upgrade

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/vesync-hijack/plugstrap/pkg/eboot"
	"github.com/vesync-hijack/plugstrap/pkg/flash"
	"github.com/vesync-hijack/plugstrap/pkg/httpconn"
)

// Provisioner gets the plug onto a network and returns the address of the
// server to upgrade from.
type Provisioner interface {
	Provision(ctx context.Context) (net.IP, error)
}

type ProvisionerFunc func(ctx context.Context) (net.IP, error)

func (f ProvisionerFunc) Provision(ctx context.Context) (net.IP, error) {
	return f(ctx)
}

// Trigger blocks until an upgrade should start and returns the server to
// download from. server is the provisioned address.
type Trigger interface {
	Wait(ctx context.Context, server net.IP) (net.IP, error)
}

// System is the SDK surface the task needs beyond flash.
type System interface {
	SetUpgradeFlag(UpgradeFlag) error
	// RunningOffset is the flash offset the current image executes from.
	RunningOffset() uint32
	// Reboot restarts the chip. On hardware it does not return.
	Reboot() error
}

// Hardware groups the devices an Orchestrator owns while it runs.
type Hardware struct {
	Flash  flash.Device
	RTC    eboot.WordWriter
	System System
}

type Option func(*Orchestrator)

// WithTrigger overrides the trigger built from Config.
func WithTrigger(t Trigger) Option {
	return func(o *Orchestrator) {
		o.trigger = t
	}
}

// WithDialer sets how the image server is reached.
func WithDialer(d httpconn.DialFunc) Option {
	return func(o *Orchestrator) {
		o.dial = d
	}
}

// WithStateHook is called on every state change.
func WithStateHook(f func(State)) Option {
	return func(o *Orchestrator) {
		o.onState = f
	}
}

// WithProgress is called after every chunk written to flash.
func WithProgress(f func(done, total int)) Option {
	return func(o *Orchestrator) {
		o.progress = f
	}
}

type Orchestrator struct {
	cfg  Config
	hw   Hardware
	prov Provisioner

	trigger  Trigger
	dial     httpconn.DialFunc
	onState  func(State)
	progress func(done, total int)

	mu    sync.Mutex
	state State
}

func New(cfg Config, hw Hardware, prov Provisioner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:  cfg,
		hw:   hw,
		prov: prov,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.trigger == nil && cfg.Trigger == TriggerMulticast {
		o.trigger = NewMulticastTrigger(cfg.MulticastGroup)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		glog.V(1).Infof("Upgrade state %s -> %s", prev, s)
	}
	if o.onState != nil {
		o.onState(s)
	}
}

// Run retries upgrade attempts until one ends in a reboot or ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		err := o.Attempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		glog.Errorf("Upgrade attempt failed: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.Backoff):
		}
	}
}

// Attempt runs one pass from provisioning to reboot. It returns nil only
// once a reboot has been requested.
func (o *Orchestrator) Attempt(ctx context.Context) (err error) {
	o.setState(StateIdle)
	defer func() {
		if err != nil {
			err = o.fail(err)
		}
	}()

	o.setState(StateProvisioning)
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProvisionTimeout)
	server, err := o.prov.Provision(pctx)
	cancel()
	if err != nil {
		return stage(StateProvisioning, err)
	}
	if server == nil {
		return stage(StateProvisioning, ErrNoServer)
	}

	if o.cfg.Trigger == TriggerMulticast {
		o.setState(StateAwaitingTrigger)
		tctx, cancel := context.WithTimeout(ctx, o.cfg.TriggerTimeout)
		server, err = o.trigger.Wait(tctx, server)
		cancel()
		if err != nil {
			return stage(StateAwaitingTrigger, err)
		}
	}

	switch o.cfg.Strategy {
	case StrategyRelocation:
		return o.Relocate(ctx, server)
	case StrategyDualPartition:
		return o.DualPartition(ctx, server)
	}
	return fmt.Errorf("%w: %s", ErrUnknownStrategy, o.cfg.Strategy)
}

func (o *Orchestrator) fail(err error) error {
	o.setState(StateFailed)
	if ferr := o.hw.System.SetUpgradeFlag(FlagIdle); ferr != nil {
		err = multierror.Append(err, fmt.Errorf("could not clear upgrade flag: %w", ferr))
	}
	return err
}

func (o *Orchestrator) reboot() error {
	glog.Infof("Rebooting")
	if err := o.hw.System.Reboot(); err != nil {
		return stage(StateFinalizing, fmt.Errorf("could not reboot: %w", err))
	}
	return nil
}
