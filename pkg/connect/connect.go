// Package connect joins the plug to a Wi-Fi network in station mode and hands
// the result to whoever is waiting for it.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

// Target is what provisioning yields: the network to join and the server to
// fetch firmware from once joined.
type Target struct {
	SSID     string
	Password string
	Server   net.IP
}

type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusWrongPassword
	StatusNoAPFound
	StatusConnectFail
	StatusGotIP
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusWrongPassword:
		return "WRONG_PASSWORD"
	case StatusNoAPFound:
		return "NO_AP_FOUND"
	case StatusConnectFail:
		return "CONNECT_FAIL"
	case StatusGotIP:
		return "GOT_IP"
	}
	return "UNKNOWN"
}

// Station is the Wi-Fi interface in station mode.
type Station interface {
	Configure(ssid, password string) error
	Disconnect() error
	Connect() error
	Status() Status
}

var (
	ErrRejected = errors.New("network rejected station")
	ErrTimeout  = errors.New("timed out joining network")
)

// Handoff is a single-slot queue. A nil address is the failure sentinel.
type Handoff struct {
	c chan net.IP
}

func NewHandoff() *Handoff {
	return &Handoff{
		c: make(chan net.IP, 1),
	}
}

// Offer queues ip without blocking. It returns false if the slot is taken.
func (h *Handoff) Offer(ip net.IP) bool {
	select {
	case h.c <- ip:
		return true
	default:
		return false
	}
}

// Wait blocks until a result arrives or ctx is done. A nil address with a
// nil error means the connection attempt failed.
func (h *Handoff) Wait(ctx context.Context) (net.IP, error) {
	select {
	case ip := <-h.c:
		return ip, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Task struct {
	Station  Station
	Interval time.Duration
	Attempts int
}

func NewTask(st Station) *Task {
	return &Task{
		Station:  st,
		Interval: time.Second,
		Attempts: 60,
	}
}

// Run joins target's network and always reports exactly once to out: the
// server address on success, nil otherwise.
func (t *Task) Run(ctx context.Context, target Target, out *Handoff) {
	var res net.IP
	if err := t.Join(ctx, target); err != nil {
		glog.Errorf("Could not join %q: %v", target.SSID, err)
	} else {
		glog.Infof("Joined %q, server is %s", target.SSID, target.Server)
		res = target.Server
	}
	if !out.Offer(res) {
		glog.Warningf("Connection result dropped, handoff slot is busy")
	}
}

// Join configures the station, then waits Interval before each status poll
// until it has an address, is refused, or runs out of attempts.
func (t *Task) Join(ctx context.Context, target Target) error {
	st := t.Station
	glog.Infof("Connecting to %q", target.SSID)
	if err := st.Configure(target.SSID, target.Password); err != nil {
		return fmt.Errorf("could not configure station: %w", err)
	}
	if err := st.Disconnect(); err != nil {
		glog.V(1).Infof("Disconnect: %v", err)
	}
	if err := st.Connect(); err != nil {
		return fmt.Errorf("could not start connection: %w", err)
	}

	for i := 0; i < t.Attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.Interval):
		}
		switch s := st.Status(); s {
		case StatusGotIP:
			return nil
		case StatusWrongPassword, StatusConnectFail:
			return fmt.Errorf("%w: %s", ErrRejected, s)
		default:
			glog.V(1).Infof("Station status %s (%d/%d)", s, i+1, t.Attempts)
		}
	}
	return ErrTimeout
}
