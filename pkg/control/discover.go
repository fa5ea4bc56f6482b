package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

const (
	// AnnouncePort is where stock plugs announce themselves after smart
	// config.
	AnnouncePort = 18266
	// DefaultHoldoff suppresses repeated announcements from one plug.
	DefaultHoldoff = 3 * time.Second
)

// Discover reads plug announcements from conn until ctx is done and calls
// found with the address of every announcing plug. Announcements from the
// previous plug within holdoff are ignored. found runs on the receive loop.
func Discover(ctx context.Context, conn net.PacketConn, holdoff time.Duration, found func(net.IP)) error {
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var last net.IP
	var lastAt time.Time
	buf := make([]byte, 64)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("could not receive announcement: %w", err)
		}
		udp, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		if udp.IP.Equal(last) && time.Since(lastAt) < holdoff {
			continue
		}
		last, lastAt = udp.IP, time.Now()
		glog.Infof("Plug %s announced itself (%d bytes)", udp.IP, n)
		found(udp.IP)
	}
}
