package devsim

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/vesync-hijack/plugstrap/pkg/connect"
	"github.com/vesync-hijack/plugstrap/pkg/eboot"
	"github.com/vesync-hijack/plugstrap/pkg/images"
	"github.com/vesync-hijack/plugstrap/pkg/upgrade"
)

func TestParams(t *testing.T) {
	d, err := Open(t.TempDir(), 0x10000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if d.RunningOffset() != 0x1000 {
		t.Errorf("fresh device runs from 0x%x", d.RunningOffset())
	}
	if err := d.SetUpgradeFlag(upgrade.FlagFinish); err != nil {
		t.Fatalf("SetUpgradeFlag: %v", err)
	}
	rebooted := false
	d.OnReboot = func() { rebooted = true }
	if err := d.Reboot(); err != nil {
		t.Fatalf("Reboot: %v", err)
	}
	p, err := d.Params()
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	if p.UpgradeFlag != uint8(upgrade.FlagFinish) || p.Boots != 1 || !rebooted {
		t.Errorf("params %+v, rebooted %v", p, rebooted)
	}
}

func TestStation(t *testing.T) {
	s := &Station{JoinAfter: 2, Password: "secret"}
	s.Configure("net", "wrong")
	s.Connect()
	if st := s.Status(); st != connect.StatusWrongPassword {
		t.Errorf("wrong password: %s", st)
	}
	s.Configure("net", "secret")
	s.Connect()
	for i, want := range []connect.Status{connect.StatusConnecting, connect.StatusConnecting, connect.StatusGotIP} {
		if st := s.Status(); st != want {
			t.Errorf("poll %d: %s, wanted %s", i, st, want)
		}
	}
}

// TestSimulatedUpgrade runs a whole relocation upgrade against a simulated
// plug and a local image server.
func TestSimulatedUpgrade(t *testing.T) {
	imgDir := t.TempDir()
	img := bytes.Repeat([]byte{0x12, 0x34, 0x56}, 5000)
	os.WriteFile(filepath.Join(imgDir, "firmware.bin"), img, 0644)
	srv := httptest.NewServer(images.Handler(imgDir))
	defer srv.Close()
	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())

	devDir := t.TempDir()
	d, err := Open(devDir, DefaultFlashSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.OnReboot = cancel

	cfg := upgrade.DefaultConfig()
	cfg.HTTPPort, _ = strconv.Atoi(port)
	task := &connect.Task{Station: &Station{JoinAfter: 1}, Interval: time.Millisecond, Attempts: 10}
	prov := &SmartConfig{
		Target: connect.Target{SSID: "hijack", Password: "pw", Server: net.ParseIP("127.0.0.1")},
		Task:   task,
	}
	o := upgrade.New(cfg, upgrade.Hardware{Flash: d.Flash, RTC: d.RTC, System: d}, prov)
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cmd, err := (&eboot.File{Path: filepath.Join(devDir, "rtc.bin")}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cmd.Action != eboot.ActionCopyRaw || cmd.Args[2] != uint32(len(img)) {
		t.Errorf("handoff record %s", cmd)
	}
	staged := make([]byte, len(img))
	if err := d.Flash.Read(cfg.Staging.Offset, staged); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(staged, img) {
		t.Errorf("staged image differs")
	}
}
