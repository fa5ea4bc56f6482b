package control

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vesync-hijack/plugstrap/pkg/connect"
)

func TestServerSplitDelivery(t *testing.T) {
	var mu sync.Mutex
	var targets []connect.Target
	s := NewServer("127.0.0.1:0", &Dispatcher{Spawn: func(target connect.Target) error {
		mu.Lock()
		defer mu.Unlock()
		targets = append(targets, target)
		return nil
	}})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	frame, _ := EncodeFrame([]byte(configJSON))
	for _, piece := range [][]byte{frame[:1], frame[1:20], frame[20:]} {
		conn.Write(piece)
		time.Sleep(10 * time.Millisecond)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply := make([]byte, len(Ack))
	if _, err := conn.Read(reply); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(reply, Ack) {
		t.Fatalf("reply %q", reply)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(targets) != 1 || targets[0].SSID != "x" {
		t.Fatalf("targets %+v", targets)
	}
}

func TestServerNoReplyOnInvalid(t *testing.T) {
	var mu sync.Mutex
	var targets []connect.Target
	s := NewServer("127.0.0.1:0", &Dispatcher{Spawn: func(target connect.Target) error {
		mu.Lock()
		defer mu.Unlock()
		targets = append(targets, target)
		return nil
	}})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	frame, _ := EncodeFrame([]byte(`{"uri":"/beginConfigRequest","wifiID":"x","serverIP":"10.0.0.5"}`))
	conn.Write(frame)
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if n, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatalf("got %d byte reply to invalid request", n)
	}

	// The connection stays usable after a rejected request.
	frame, _ = EncodeFrame([]byte(configJSON))
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("Write after invalid request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply := make([]byte, len(Ack))
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(reply, Ack) {
		t.Fatalf("reply %q", reply)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(targets) != 1 {
		t.Fatalf("spawned %d tasks, wanted 1", len(targets))
	}
}

func TestServerConnAfterClose(t *testing.T) {
	s := NewServer("127.0.0.1:0", &Dispatcher{Spawn: func(connect.Target) error { return nil }})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	s.mu.Lock()
	l := s.l
	s.mu.Unlock()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A connection accepted while Close ran must not outlive the server.
	local, remote := net.Pipe()
	defer remote.Close()
	if s.track(l, local) {
		t.Fatalf("connection tracked after Close")
	}
	remote.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := remote.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("Read on dropped connection: %v, wanted EOF", err)
	}
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d connections tracked", n)
	}
}

type stubStation struct{ status connect.Status }

func (s *stubStation) Configure(ssid, password string) error { return nil }
func (s *stubStation) Disconnect() error                     { return nil }
func (s *stubStation) Connect() error                        { return nil }
func (s *stubStation) Status() connect.Status                { return s.status }

func TestProvisioner(t *testing.T) {
	task := &connect.Task{Station: &stubStation{connect.StatusGotIP}, Interval: time.Millisecond, Attempts: 3}
	p := NewProvisioner("127.0.0.1:0", task)
	defer p.Close()

	type result struct {
		ip  net.IP
		err error
	}
	resC := make(chan result, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		ip, err := p.Provision(ctx)
		resC <- result{ip, err}
	}()

	for p.Addr() == nil {
		time.Sleep(time.Millisecond)
	}
	reply, err := Configure(ctx, p.Addr().String(), NewConfigRequest("x", "y", net.ParseIP("10.0.0.5")))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if !bytes.Equal(reply, Ack[1:]) {
		t.Errorf("reply %q", reply)
	}
	res := <-resC
	if res.err != nil || !res.ip.Equal(net.ParseIP("10.0.0.5")) {
		t.Fatalf("Provision: %v, %v", res.ip, res.err)
	}
}

func TestProvisionerConnectFailure(t *testing.T) {
	task := &connect.Task{Station: &stubStation{connect.StatusWrongPassword}, Interval: time.Millisecond, Attempts: 3}
	p := NewProvisioner("127.0.0.1:0", task)
	defer p.Close()

	if _, err := spawnAndWait(t, p); err != ErrConnectFailed {
		t.Fatalf("Provision: %v", err)
	}
}

func TestProvisionerBusy(t *testing.T) {
	// The first task is still waiting for its first status poll when the
	// second request arrives.
	task := &connect.Task{Station: &stubStation{connect.StatusConnecting}, Interval: time.Hour, Attempts: 1}
	p := NewProvisioner("127.0.0.1:0", task)
	defer p.Close()
	if err := p.server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := p.Addr().String()
	req := NewConfigRequest("x", "y", net.ParseIP("10.0.0.5"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := Configure(ctx, addr, req)
	if err != nil {
		t.Fatalf("first Configure: %v", err)
	}
	if !bytes.Equal(reply, Ack[1:]) {
		t.Fatalf("first reply %q", reply)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	if reply, err := Configure(ctx2, addr, req); err == nil {
		t.Fatalf("second request acknowledged with %q", reply)
	}
	if err := p.spawn(connect.Target{SSID: "x", Server: net.ParseIP("10.0.0.5")}); err != ErrBusy {
		t.Fatalf("spawn while busy: %v, wanted ErrBusy", err)
	}
}

func spawnAndWait(t *testing.T, p *Provisioner) (net.IP, error) {
	t.Helper()
	if err := p.spawn(connect.Target{SSID: "x", Password: "bad", Server: net.ParseIP("10.0.0.5")}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Provision(ctx)
}
