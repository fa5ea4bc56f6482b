// Package httpconn is a minimal HTTP/1.0 client for pulling a firmware image
// through a small packet buffer. The body is not copied: callers walk it one
// received packet at a time with Available, Data and Next.
package httpconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/glog"
)

var (
	ErrUse       = errors.New("connection not in content state")
	ErrTruncated = errors.New("connection closed before end of response")
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Option func(*Client)

// WithTimeout sets how long a single receive may wait for data.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithDialer(d DialFunc) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithPacketSize sets the receive buffer size, which bounds how much body a
// single Data call can return.
func WithPacketSize(n int) Option {
	return func(c *Client) {
		c.buf = make([]byte, n)
	}
}

// Client performs one GET against a fixed address.
type Client struct {
	addr    string
	timeout time.Duration
	dial    DialFunc

	conn net.Conn
	stop func() bool

	p          parser
	buf        []byte
	pkt        []byte
	contentOfs int
}

func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		timeout: 10 * time.Second,
		p:       newParser(),
		buf:     make([]byte, 1460),
	}
	for _, o := range opts {
		o(c)
	}
	if c.dial == nil {
		d := &net.Dialer{Timeout: c.timeout}
		c.dial = d.DialContext
	}
	return c
}

// Get connects, sends the request and parses the response head. On return
// the client is positioned at the start of the body. Cancelling ctx tears
// down the connection for the whole lifetime of the request.
func (c *Client) Get(ctx context.Context, path string) error {
	if c.conn != nil {
		return ErrUse
	}
	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", c.addr, err)
	}
	c.conn = conn
	c.stop = context.AfterFunc(ctx, func() {
		conn.Close()
	})

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.0\r\n\r\n", path); err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	for c.p.state < stateContent {
		if err := c.receive(); err != nil {
			return err
		}
		c.pkt = c.pkt[c.p.feed(c.pkt):]
	}
	glog.V(1).Infof("GET %s: status %d, content length %d", path, c.p.statusCode, c.p.contentLength)
	return nil
}

func (c *Client) receive() error {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("could not set receive timeout: %w", err)
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.pkt = c.buf[:n]
			glog.V(2).Infof("Received %d bytes (%s)", n, c.p.state)
			return nil
		}
		if errors.Is(err, io.EOF) {
			return ErrTruncated
		}
		if err != nil {
			return fmt.Errorf("could not receive: %w", err)
		}
	}
}

// StatusCode is -1 until the status line has been parsed.
func (c *Client) StatusCode() int {
	return c.p.statusCode
}

// ContentLength is zero when the response did not declare one.
func (c *Client) ContentLength() int {
	return c.p.contentLength
}

func (c *Client) Finished() bool {
	return c.p.state == stateFinished
}

// Available is the number of body bytes in the current packet. Bytes past
// the declared content length are never reported.
func (c *Client) Available() int {
	if c.p.state != stateContent {
		return 0
	}
	return min(len(c.pkt), c.p.contentLength-c.contentOfs)
}

func (c *Client) Data() []byte {
	return c.pkt[:c.Available()]
}

// Next drops the current packet and receives the next one, unless the whole
// body has been consumed, in which case the client becomes Finished. Once
// Finished, Next does nothing.
func (c *Client) Next() error {
	switch c.p.state {
	case stateFinished:
		return nil
	case stateContent:
	default:
		return ErrUse
	}
	c.contentOfs += c.Available()
	c.pkt = nil
	if c.contentOfs >= c.p.contentLength {
		c.p.state = stateFinished
		return nil
	}
	return c.receive()
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.stop()
	return c.conn.Close()
}
