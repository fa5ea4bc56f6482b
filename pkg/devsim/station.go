package devsim

import (
	"context"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/vesync-hijack/plugstrap/pkg/connect"
)

// Station pretends to associate with an access point. It reports an address
// after JoinAfter status polls, or rejects the password if Password is set
// and does not match.
type Station struct {
	JoinAfter int
	Password  string

	mu       sync.Mutex
	ssid     string
	password string
	polls    int
	started  bool
}

func (s *Station) Configure(ssid, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ssid, s.password = ssid, password
	return nil
}

func (s *Station) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Station) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.polls = 0
	return nil
}

func (s *Station) Status() connect.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return connect.StatusIdle
	}
	s.polls++
	if s.Password != "" && s.password != s.Password {
		return connect.StatusWrongPassword
	}
	if s.polls <= s.JoinAfter {
		return connect.StatusConnecting
	}
	return connect.StatusGotIP
}

// SmartConfig stands in for the vendor pairing protocol: it always yields
// Target, then joins its network.
type SmartConfig struct {
	Target connect.Target
	Task   *connect.Task
}

func (s *SmartConfig) Provision(ctx context.Context) (net.IP, error) {
	glog.Infof("Smart config yielded %q, server %s", s.Target.SSID, s.Target.Server)
	if err := s.Task.Join(ctx, s.Target); err != nil {
		return nil, err
	}
	return s.Target.Server, nil
}

// LogPin is a GPIO that only logs.
type LogPin int

func (p LogPin) Set(high bool) error {
	glog.V(2).Infof("GPIO%d = %v", int(p), high)
	return nil
}
