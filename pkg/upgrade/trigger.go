package upgrade

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/golang/glog"
)

// MulticastTrigger waits for a datagram starting with Sentinel on a
// multicast group. The sender of that datagram is the image server.
type MulticastTrigger struct {
	Group    string
	Sentinel byte
	// Poll bounds each receive so cancellation is noticed.
	Poll time.Duration
	// SameSender only accepts beacons from the provisioned server.
	SameSender bool
	// Listen opens the socket. It defaults to joining Group on all
	// interfaces.
	Listen func() (net.PacketConn, error)
}

func NewMulticastTrigger(group string) *MulticastTrigger {
	return &MulticastTrigger{
		Group:    group,
		Sentinel: '1',
		Poll:     time.Second,
	}
}

func (m *MulticastTrigger) listen() (net.PacketConn, error) {
	if m.Listen != nil {
		return m.Listen()
	}
	addr, err := net.ResolveUDPAddr("udp4", m.Group)
	if err != nil {
		return nil, fmt.Errorf("invalid multicast group %q: %w", m.Group, err)
	}
	return net.ListenMulticastUDP("udp4", nil, addr)
}

func (m *MulticastTrigger) Wait(ctx context.Context, server net.IP) (net.IP, error) {
	conn, err := m.listen()
	if err != nil {
		return nil, fmt.Errorf("could not join %s: %w", m.Group, err)
	}
	defer conn.Close()
	glog.Infof("Waiting for upgrade trigger on %s", m.Group)

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTriggerTimeout
			}
			return nil, ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(m.Poll)); err != nil {
			return nil, err
		}
		n, from, err := conn.ReadFrom(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not receive trigger: %w", err)
		}
		if n == 0 || buf[0] != m.Sentinel {
			continue
		}
		udp, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		if m.SameSender && server != nil && !udp.IP.Equal(server) {
			glog.V(1).Infof("Ignoring trigger from %s", udp.IP)
			continue
		}
		glog.Infof("Upgrade triggered by %s", udp.IP)
		return udp.IP, nil
	}
}

// SendBeacon sends a single trigger datagram to addr, normally the
// multicast group.
func SendBeacon(addr string, sentinel byte) error {
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return fmt.Errorf("could not dial %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{sentinel}); err != nil {
		return fmt.Errorf("could not send beacon: %w", err)
	}
	return nil
}
