package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vesync-hijack/plugstrap/pkg/connect"
)

var ErrConnectFailed = errors.New("could not join network")

// Provisioner gets the plug onto a network through the control channel: a
// configuration request starts a connection task, whose result arrives
// through a single-slot handoff.
type Provisioner struct {
	server  *Server
	task    *connect.Task
	handoff *connect.Handoff
	slot    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewProvisioner(addr string, task *connect.Task) *Provisioner {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provisioner{
		task:    task,
		handoff: connect.NewHandoff(),
		slot:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.server = NewServer(addr, &Dispatcher{Spawn: p.spawn})
	return p
}

func (p *Provisioner) spawn(t connect.Target) error {
	select {
	case p.slot <- struct{}{}:
	default:
		return ErrBusy
	}
	go func() {
		defer func() { <-p.slot }()
		p.task.Run(p.ctx, t, p.handoff)
	}()
	return nil
}

// Provision opens the control channel if needed and waits for a connection
// task to report back.
func (p *Provisioner) Provision(ctx context.Context) (net.IP, error) {
	if err := p.server.Listen(); err != nil {
		return nil, err
	}
	ip, err := p.handoff.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("no configuration received: %w", err)
	}
	if ip == nil {
		return nil, ErrConnectFailed
	}
	return ip, nil
}

// Addr is the control channel's listening address once provisioning began.
func (p *Provisioner) Addr() net.Addr {
	return p.server.Addr()
}

func (p *Provisioner) Close() error {
	p.cancel()
	return p.server.Close()
}
