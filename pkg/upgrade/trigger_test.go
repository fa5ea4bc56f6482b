package upgrade

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func loopbackTrigger(t *testing.T) (*MulticastTrigger, chan net.Addr) {
	t.Helper()
	addrC := make(chan net.Addr, 1)
	m := NewMulticastTrigger("unused")
	m.Poll = 20 * time.Millisecond
	m.Listen = func() (net.PacketConn, error) {
		c, err := net.ListenPacket("udp4", "127.0.0.1:0")
		if err == nil {
			addrC <- c.LocalAddr()
		}
		return c, err
	}
	return m, addrC
}

func TestMulticastTrigger(t *testing.T) {
	m, addrC := loopbackTrigger(t)
	go func() {
		to := <-addrC
		c, err := net.ListenPacket("udp4", "127.0.0.1:0")
		if err != nil {
			return
		}
		defer c.Close()
		for _, p := range []string{"", "0", "hello", "1111"} {
			time.Sleep(30 * time.Millisecond)
			c.WriteTo([]byte(p), to)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ip, err := m.Wait(ctx, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ip.Equal(net.ParseIP("127.0.0.1")) {
		t.Fatalf("triggered by %s", ip)
	}
}

func TestMulticastTriggerSameSender(t *testing.T) {
	m, addrC := loopbackTrigger(t)
	m.SameSender = true
	go func() {
		to := <-addrC
		c, err := net.ListenPacket("udp4", "127.0.0.1:0")
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteTo([]byte("1"), to)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx, net.ParseIP("192.0.2.1")); !errors.Is(err, ErrTriggerTimeout) {
		t.Fatalf("Wait: %v, wanted ErrTriggerTimeout", err)
	}
}

func TestSendBeacon(t *testing.T) {
	m, addrC := loopbackTrigger(t)
	go func() {
		to := <-addrC
		time.Sleep(20 * time.Millisecond)
		if err := SendBeacon(to.String(), '1'); err != nil {
			t.Errorf("SendBeacon: %v", err)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.Wait(ctx, nil); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
