package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Millisecond, cfg.Radio.Backoff())
	assert.Equal(t, 48, cfg.Radio.MaxRead)
	assert.Equal(t, 115200, cfg.Radio.BaudRate)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/flight.toml")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS2", cfg.Radio.Device)
	assert.Equal(t, "N", cfg.Radio.Parity)
	assert.Equal(t, []int{8161}, cfg.Comms.DownlinkPorts)
	assert.Equal(t, 168*time.Hour, cfg.DB.MessageRetention)
	assert.Equal(t, "/dev/sda3", cfg.Health.Disks.UpgradeFilesystem)
	assert.Equal(t, Default().Radio, cfg.Radio)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[radio]
device = "/dev/ttyUSB0"
backoff_ms = 25

[comms]
downlink_ports = [9000, 9001]

[health]
interval = "30s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Radio.Device)
	assert.Equal(t, 25*time.Millisecond, cfg.Radio.Backoff())
	assert.Equal(t, 115200, cfg.Radio.BaudRate)
	assert.Equal(t, []int{9000, 9001}, cfg.Comms.DownlinkPorts)
	assert.Equal(t, 50, cfg.Comms.MaxErrors)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.Equal(t, "/", cfg.Health.Disks.RootMount)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknown key", body: "[radio]\nbaud = 9600\n", wantErr: "unknown config keys in"},
		{name: "syntax", body: "[radio\n", wantErr: "failed to parse config"},
		{name: "flow control", body: "[radio]\nflow_control = \"rtscts\"\n", wantErr: "unsupported flow control"},
		{name: "missing device", body: "[radio]\ndevice = \"\"\n", wantErr: "radio.device is required"},
		{name: "bad port", body: "[comms]\ndownlink_ports = [0]\n", wantErr: "invalid downlink port"},
		{name: "bad host", body: "[comms]\ndownlink_host = \"localhost\"\n", wantErr: "not an IP address"},
		{name: "bad listen", body: "[api]\nlisten = \"8080\"\n", wantErr: "invalid api.listen"},
		{name: "relative dir", body: "[api]\nallowed_dirs = [\"tmp\"]\n", wantErr: "must be absolute"},
		{name: "zero max read", body: "[radio]\nmax_read = 0\n", wantErr: "radio.max_read"},
		{name: "bad duration", body: "[health]\ninterval = \"soon\"\n", wantErr: "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DisabledRadioNeedsNoDevice(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[radio]\ndevice = \"\"\ndisabled = true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Radio.Disabled)
}

func TestLoad_FileChecks(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "flight.json"))
	assert.ErrorContains(t, err, ".toml extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to stat")
}
