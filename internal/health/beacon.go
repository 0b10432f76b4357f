package health

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Subsystem is the telemetry subsystem name health parameters are stored under.
const Subsystem = "OBC"

const beaconTimeLayout = "2006-01-02T15:04:05"

// Beacon is one health sample. Figures that could not be collected are zero.
type Beacon struct {
	Time        time.Time
	Uptime      float64
	MemUsage    float64
	CPUUsage    float64
	DiskRoot    float64
	DiskHome    float64
	DiskSD      float64
	DiskUpgrade float64
}

// String renders the beacon as transmitted:
//
//	2024-03-01T12:00:00,0000350735.5,042.0,007.3,061.0,012.0,003.0,001.0
func (b Beacon) String() string {
	return fmt.Sprintf("%s,%012.1f,%05.1f,%05.1f,%05.1f,%05.1f,%05.1f,%05.1f",
		b.Time.UTC().Format(beaconTimeLayout),
		b.Uptime, b.MemUsage, b.CPUUsage,
		b.DiskRoot, b.DiskHome, b.DiskSD, b.DiskUpgrade)
}

// Parameter is one named telemetry value taken from a beacon.
type Parameter struct {
	Name  string
	Value string
}

// Parameters lists the beacon figures under their telemetry names, in
// beacon order.
func (b Beacon) Parameters() []Parameter {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []Parameter{
		{"uptime", f(b.Uptime)},
		{"mem_usage", f(b.MemUsage)},
		{"cpu_usage", f(b.CPUUsage)},
		{"disk_root_usage", f(b.DiskRoot)},
		{"disk_home_usage", f(b.DiskHome)},
		{"disk_sd_usage", f(b.DiskSD)},
		{"disk_upgrade_usage", f(b.DiskUpgrade)},
	}
}

// Transmit sends the beacon as a single datagram to addr from an ephemeral
// local port and returns the number of bytes sent.
func Transmit(addr string, b Beacon) (int, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve radio address %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return 0, fmt.Errorf("failed to open beacon socket: %w", err)
	}
	defer conn.Close()

	n, err := conn.Write([]byte(b.String()))
	if err != nil {
		return n, fmt.Errorf("failed to send health beacon to radio: %w", err)
	}
	return n, nil
}
