package connect

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type fakeStation struct {
	ssid, password string
	statuses       []Status
	polls          int
}

func (f *fakeStation) Configure(ssid, password string) error {
	f.ssid, f.password = ssid, password
	return nil
}

func (f *fakeStation) Disconnect() error { return nil }
func (f *fakeStation) Connect() error    { return nil }

func (f *fakeStation) Status() Status {
	f.polls++
	if f.polls > len(f.statuses) {
		return f.statuses[len(f.statuses)-1]
	}
	return f.statuses[f.polls-1]
}

func TestJoin(t *testing.T) {
	server := net.ParseIP("10.0.0.5")
	for _, tc := range []struct {
		name     string
		statuses []Status
		want     net.IP
		polls    int
	}{
		{"got ip", []Status{StatusConnecting, StatusConnecting, StatusGotIP}, server, 3},
		{"wrong password", []Status{StatusConnecting, StatusWrongPassword}, nil, 2},
		{"connect fail", []Status{StatusConnectFail}, nil, 1},
		{"exhausted", []Status{StatusNoAPFound}, nil, 5},
	} {
		st := &fakeStation{statuses: tc.statuses}
		task := &Task{Station: st, Interval: time.Millisecond, Attempts: 5}
		h := NewHandoff()
		task.Run(context.Background(), Target{SSID: "x", Password: "y", Server: server}, h)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		got, err := h.Wait(ctx)
		cancel()
		if err != nil {
			t.Fatalf("%s: Wait: %v", tc.name, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: got %v, wanted %v", tc.name, got, tc.want)
		}
		if st.polls != tc.polls {
			t.Errorf("%s: %d polls, wanted %d", tc.name, st.polls, tc.polls)
		}
		if st.ssid != "x" || st.password != "y" {
			t.Errorf("%s: station configured with %q/%q", tc.name, st.ssid, st.password)
		}
	}
}

func TestHandoffSingleSlot(t *testing.T) {
	h := NewHandoff()
	if !h.Offer(net.ParseIP("1.2.3.4")) {
		t.Fatalf("first Offer refused")
	}
	if h.Offer(net.ParseIP("5.6.7.8")) {
		t.Fatalf("second Offer accepted")
	}
	ip, err := h.Wait(context.Background())
	if err != nil || !ip.Equal(net.ParseIP("1.2.3.4")) {
		t.Fatalf("Wait: %v, %v", ip, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("empty Wait: %v", err)
	}
}

func TestJoinCancelled(t *testing.T) {
	st := &fakeStation{statuses: []Status{StatusConnecting}}
	task := &Task{Station: st, Interval: time.Hour, Attempts: 60}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Join(ctx, Target{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Join: %v", err)
	}
}

func TestJoinWaitsBeforePolling(t *testing.T) {
	st := &fakeStation{statuses: []Status{StatusGotIP}}
	task := &Task{Station: st, Interval: 50 * time.Millisecond, Attempts: 3}
	start := time.Now()
	if err := task.Join(context.Background(), Target{}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if elapsed := time.Since(start); elapsed < task.Interval {
		t.Errorf("status polled after %s, wanted at least %s", elapsed, task.Interval)
	}
	if st.polls != 1 {
		t.Errorf("%d polls, wanted 1", st.polls)
	}
}
