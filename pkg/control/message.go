package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/vesync-hijack/plugstrap/pkg/connect"
)

const (
	URIBeginConfigRequest = "/beginConfigRequest"
	URIBeginConfigReply   = "/beginConfigReply"
)

var ErrBusy = errors.New("connection attempt already in progress")

// ConfigRequest asks the plug to join a network and fetch firmware from
// ServerIP. Required fields are pointers so that absent and empty differ.
type ConfigRequest struct {
	URI          string          `json:"uri"`
	WifiID       *string         `json:"wifiID"`
	WifiBssid    string          `json:"wifiBssid"`
	WifiPassword *string         `json:"wifiPassword"`
	Account      string          `json:"account,omitempty"`
	Key          json.RawMessage `json:"key,omitempty"`
	ServerIP     *string         `json:"serverIP"`
}

func NewConfigRequest(ssid, password string, server net.IP) *ConfigRequest {
	ip := server.String()
	return &ConfigRequest{
		URI:          URIBeginConfigRequest,
		WifiID:       &ssid,
		WifiPassword: &password,
		Account:      "0",
		Key:          json.RawMessage(strconv.FormatInt(time.Now().UnixMilli(), 10)),
		ServerIP:     &ip,
	}
}

// Target validates the request.
func (r *ConfigRequest) Target() (connect.Target, error) {
	switch {
	case r.WifiID == nil:
		return connect.Target{}, fmt.Errorf("missing wifiID")
	case r.WifiPassword == nil:
		return connect.Target{}, fmt.Errorf("missing wifiPassword")
	case r.ServerIP == nil:
		return connect.Target{}, fmt.Errorf("missing serverIP")
	}
	ip := net.ParseIP(*r.ServerIP)
	if ip == nil {
		return connect.Target{}, fmt.Errorf("invalid serverIP %q", *r.ServerIP)
	}
	return connect.Target{
		SSID:     *r.WifiID,
		Password: *r.WifiPassword,
		Server:   ip,
	}, nil
}

// Ack is the complete frame sent back once a connection attempt started.
var Ack = func() []byte {
	f, err := EncodeFrame([]byte(`{"uri":"/beginConfigReply","err":0}`))
	if err != nil {
		panic(err)
	}
	return f
}()

// Dispatcher routes control messages by their uri. Spawn starts a
// connection attempt for a validated target, or fails if one is already
// running.
type Dispatcher struct {
	Spawn func(connect.Target) error
}

// Dispatch handles one frame payload and returns the frame to send back, if
// any. Bad messages are logged and dropped.
func (d *Dispatcher) Dispatch(payload []byte) []byte {
	var msg struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		glog.Warningf("Dropping malformed control message: %v", err)
		return nil
	}
	switch msg.URI {
	case URIBeginConfigRequest:
		var req ConfigRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			glog.Warningf("Dropping malformed %s: %v", msg.URI, err)
			return nil
		}
		target, err := req.Target()
		if err != nil {
			glog.Warningf("Dropping %s: %v", msg.URI, err)
			return nil
		}
		if err := d.Spawn(target); err != nil {
			glog.Warningf("Dropping %s: %v", msg.URI, err)
			return nil
		}
		glog.Infof("Configuring for %q, server %s", target.SSID, target.Server)
		return Ack
	default:
		glog.Warningf("Ignoring control message with uri %q", msg.URI)
		return nil
	}
}
