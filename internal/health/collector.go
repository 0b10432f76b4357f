package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dora-sat/flight/internal/httputil"
)

// DefaultCPUInterval is the CPU sampling window.
const DefaultCPUInterval = time.Second

// Collector assembles beacons from a Probe.
type Collector struct {
	Probe       *Probe
	Disks       DiskTargets
	CPUInterval time.Duration
}

// NewCollector returns a Collector over probe with the default sampling window.
func NewCollector(probe *Probe, disks DiskTargets) *Collector {
	return &Collector{Probe: probe, Disks: disks, CPUInterval: DefaultCPUInterval}
}

// Collect gathers one beacon. Individual failures are logged and leave the
// corresponding figure at zero; Collect itself never fails.
func (c *Collector) Collect(ctx context.Context) Beacon {
	b := Beacon{Time: c.Probe.Clock.Now()}

	if up, err := c.Probe.Uptime(); err != nil {
		log.Printf("Failed to get uptime: %v", err)
	} else {
		b.Uptime = up.Up
	}

	interval := c.CPUInterval
	if interval <= 0 {
		interval = DefaultCPUInterval
	}
	if cpu, err := c.Probe.CPUUsage(interval); err != nil {
		log.Printf("Failed to get CPU usage: %v", err)
	} else {
		b.CPUUsage = cpu
	}

	if mem, err := c.Probe.MemInfo(); err != nil {
		log.Printf("Failed to get memory info: %v", err)
	} else {
		b.MemUsage = mem.UsePercent
	}

	disks, err := c.Probe.DiskUsageAll(ctx)
	if err != nil {
		log.Printf("Failed to get disk usage: %v", err)
	}
	pick := func(label string, d DiskInfo, ok bool) float64 {
		if !ok {
			if err == nil {
				log.Printf("No df entry for %s", label)
			}
			return 0
		}
		return d.UsePercent
	}
	d, ok := FindMount(disks, c.Disks.RootMount)
	b.DiskRoot = pick(c.Disks.RootMount, d, ok)
	d, ok = FindMount(disks, c.Disks.HomeMount)
	b.DiskHome = pick(c.Disks.HomeMount, d, ok)
	d, ok = FindFilesystem(disks, c.Disks.SDFilesystem)
	b.DiskSD = pick(c.Disks.SDFilesystem, d, ok)
	d, ok = FindFilesystem(disks, c.Disks.UpgradeFilesystem)
	b.DiskUpgrade = pick(c.Disks.UpgradeFilesystem, d, ok)

	return b
}

// InsertRequest is the body accepted by the telemetry insert endpoint.
type InsertRequest struct {
	Subsystem string `json:"subsystem"`
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// InsertResponse is the telemetry insert endpoint's reply.
type InsertResponse struct {
	Success bool   `json:"success"`
	Errors  string `json:"errors"`
}

// SaveParameters posts every beacon figure to the telemetry insert endpoint
// at url. All parameters are attempted; the failures are joined.
func SaveParameters(client httputil.HTTPClient, url string, b Beacon) error {
	var errs []error
	for _, p := range b.Parameters() {
		if err := saveParameter(client, url, p); err != nil {
			log.Printf("Failed to save %s: %v", p.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func saveParameter(client httputil.HTTPClient, url string, p Parameter) error {
	body, err := json.Marshal(InsertRequest{Subsystem: Subsystem, Parameter: p.Name, Value: p.Value})
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telemetry service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read telemetry service response: %w", err)
	}
	var reply InsertResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("unexpected telemetry service response (status %d): %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if resp.StatusCode != http.StatusOK || !reply.Success {
		return fmt.Errorf("failed to save value to database: %s", reply.Errors)
	}
	return nil
}
