package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dora-sat/flight/internal/config"
	"github.com/dora-sat/flight/internal/serialmux"
)

func TestOpenRadio_UsesFactory(t *testing.T) {
	port := serialmux.NewTestableSerialPort(serialmux.ReadStep{Data: []byte("hello")})
	factory := serialmux.NewMockSerialPortFactory(port)
	cfg := config.Default().Radio
	cfg.Device = "/dev/ttyTEST"

	ch, err := openRadio(factory, cfg, false)
	require.NoError(t, err)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyTEST", call.Path)
	assert.Equal(t, cfg.PortOptions, call.Options)

	msg, err := serialmux.NewFramer(ch).Read()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))

	require.NoError(t, ch.Close())
	assert.True(t, port.Closed)
}

func TestOpenRadio_Disabled(t *testing.T) {
	factory := serialmux.NewMockSerialPortFactory(nil)
	cfg := config.Default().Radio

	ch, err := openRadio(factory, cfg, true)
	require.NoError(t, err)
	defer ch.Close()
	assert.Empty(t, factory.OpenCalls)

	cfg.Disabled = true
	ch2, err := openRadio(factory, cfg, false)
	require.NoError(t, err)
	defer ch2.Close()
	assert.Empty(t, factory.OpenCalls)
}

func TestOpenRadio_OpenFailure(t *testing.T) {
	factory := serialmux.NewMockSerialPortFactory(nil)
	factory.Error = errors.New("no such device")

	_, err := openRadio(factory, config.Default().Radio, false)
	assert.EqualError(t, err, "no such device")
}

func TestLoadConfig(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "only the default path may be missing")

	path := filepath.Join(t.TempDir(), "flight.toml")
	require.NoError(t, os.WriteFile(path, []byte("[radio]\ndevice = \"/dev/ttyS9\"\n"), 0o644))
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS9", cfg.Radio.Device)
}
