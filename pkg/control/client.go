package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

// Configure is the other end of the control channel: it connects to a plug,
// sends req and returns the first reply frame.
func Configure(ctx context.Context, addr string, req *ConfigRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode request: %w", err)
	}
	frame, err := EncodeFrame(payload)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	glog.V(1).Infof("Sending %s", payload)
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}

	var reply []byte
	f := NewFramer(func(p []byte) {
		if reply == nil {
			reply = append([]byte(nil), p...)
		}
	})
	buf := make([]byte, 1+MaxPayload)
	for reply == nil {
		n, err := conn.Read(buf)
		if n > 0 {
			f.Feed(buf[:n])
		}
		if err != nil && reply == nil {
			return nil, fmt.Errorf("no reply from %s: %w", addr, err)
		}
	}
	return reply, nil
}
