package dbus

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// Client calls a running daemon.
type Client struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

// NewClient connects to the daemon on the system bus, or the session bus
// when session is set.
func NewClient(session bool) (*Client, error) {
	connect := godbus.SystemBus
	if session {
		connect = godbus.SessionBus
	}
	conn, err := connect()
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(BusName, ObjPath)}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SendEvent sends a custom event. A nil value sends none.
func (c *Client) SendEvent(category, action, label string, value *int64, pkg string, sampled bool) error {
	var v int64
	if value != nil {
		v = *value
	}
	return c.obj.Call(IfaceName+".SendEvent", 0, category, action, label, v, value != nil, pkg, sampled).Err
}

// HitScreen records a screen view.
func (c *Client) HitScreen(component string) error {
	return c.obj.Call(IfaceName+".HitScreen", 0, component).Err
}

// CaptureException sends an exception description.
func (c *Client) CaptureException(description, thread, pkg string) error {
	return c.obj.Call(IfaceName+".CaptureException", 0, description, thread, pkg).Err
}

// UploadLog sends key/value logs to the log server.
func (c *Client) UploadLog(pkg string, logs map[string]string) error {
	return c.obj.Call(IfaceName+".UploadLog", 0, pkg, logs).Err
}

// SendLogs asks the daemon to upload now.
func (c *Client) SendLogs() error {
	return c.obj.Call(IfaceName+".SendLogs", 0).Err
}

// GetCurrentStats fetches the live stats.
func (c *Client) GetCurrentStats() (*CurrentStats, error) {
	var jsonStr string
	if err := c.obj.Call(IfaceName+".GetCurrentStats", 0).Store(&jsonStr); err != nil {
		return nil, err
	}
	var stats CurrentStats
	if err := json.Unmarshal([]byte(jsonStr), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetDischargeHistory fetches discharge events in [from, to].
func (c *Client) GetDischargeHistory(from, to time.Time) ([]storage.DischargeRecord, error) {
	var jsonStr string
	if err := c.obj.Call(IfaceName+".GetDischargeHistory", 0, from.Unix(), to.Unix()).Store(&jsonStr); err != nil {
		return nil, err
	}
	var events []storage.DischargeRecord
	if err := json.Unmarshal([]byte(jsonStr), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetHardwareInfo fetches the reported hardware facts.
func (c *Client) GetHardwareInfo() (map[string]string, error) {
	var jsonStr string
	if err := c.obj.Call(IfaceName+".GetHardwareInfo", 0).Store(&jsonStr); err != nil {
		return nil, err
	}
	facts := map[string]string{}
	if err := json.Unmarshal([]byte(jsonStr), &facts); err != nil {
		return nil, err
	}
	return facts, nil
}
