// Package health gathers OBC health figures (uptime, CPU, memory and disk
// usage), formats them into the downlink beacon and stores them as
// telemetry parameters.
package health

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/dora-sat/flight/internal/fsutil"
	"github.com/dora-sat/flight/internal/sysexec"
	"github.com/dora-sat/flight/internal/timeutil"
)

const (
	procUptime  = "/proc/uptime"
	procStat    = "/proc/stat"
	procMeminfo = "/proc/meminfo"

	// DefaultDFPath is the df binary used for disk usage.
	DefaultDFPath = "/bin/df"
)

// ErrMalformed is wrapped by every parse failure of a /proc file or df output.
var ErrMalformed = errors.New("malformed system info")

// Probe reads system figures. The zero value is not usable; see NewProbe.
type Probe struct {
	FS       fsutil.FileSystem
	Commands sysexec.CommandBuilder
	Clock    timeutil.Clock
	DFPath   string
}

// NewProbe returns a Probe over the real /proc, df and clock.
func NewProbe() *Probe {
	return &Probe{
		FS:       fsutil.OSFileSystem{},
		Commands: sysexec.NewRealCommandBuilder(),
		Clock:    timeutil.RealClock{},
		DFPath:   DefaultDFPath,
	}
}

// Uptime is the content of /proc/uptime, in seconds.
type Uptime struct {
	Up   float64
	Idle float64
}

// Uptime reads /proc/uptime.
func (p *Probe) Uptime() (Uptime, error) {
	data, err := p.FS.ReadFile(procUptime)
	if err != nil {
		return Uptime{}, fmt.Errorf("failed to read %s: %w", procUptime, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return Uptime{}, fmt.Errorf("%w: %s has %d fields", ErrMalformed, procUptime, len(fields))
	}
	up, err1 := strconv.ParseFloat(fields[0], 64)
	idle, err2 := strconv.ParseFloat(fields[1], 64)
	if err := errors.Join(err1, err2); err != nil {
		return Uptime{}, fmt.Errorf("%w: %s: %v", ErrMalformed, procUptime, err)
	}
	return Uptime{Up: up, Idle: idle}, nil
}

// CPUTimes is the aggregate "cpu" line of /proc/stat, in clock ticks.
type CPUTimes struct {
	User, Nice, System, Idle, IOWait, IRQ, SoftIRQ float64
}

func (c CPUTimes) vector() []float64 {
	return []float64{c.User, c.Nice, c.System, c.Idle, c.IOWait, c.IRQ, c.SoftIRQ}
}

// CPUTimes reads the aggregate CPU line of /proc/stat.
func (p *Probe) CPUTimes() (CPUTimes, error) {
	data, err := p.FS.ReadFile(procStat)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to read %s: %w", procStat, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return CPUTimes{}, fmt.Errorf("%w: cpu line of %s has %d fields", ErrMalformed, procStat, len(fields))
		}
		var v [7]float64
		for i := range v {
			n, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return CPUTimes{}, fmt.Errorf("%w: %s field %d: %v", ErrMalformed, procStat, i+1, err)
			}
			v[i] = float64(n)
		}
		return CPUTimes{User: v[0], Nice: v[1], System: v[2], Idle: v[3], IOWait: v[4], IRQ: v[5], SoftIRQ: v[6]}, nil
	}
	return CPUTimes{}, fmt.Errorf("%w: no cpu line in %s", ErrMalformed, procStat)
}

// CPUUsage samples /proc/stat twice, interval apart, and returns the busy
// percentage over user, nice, system and idle time.
func (p *Probe) CPUUsage(interval time.Duration) (float64, error) {
	before, err := p.CPUTimes()
	if err != nil {
		return 0, err
	}
	p.Clock.Sleep(interval)
	after, err := p.CPUTimes()
	if err != nil {
		return 0, err
	}

	delta := make([]float64, 7)
	floats.SubTo(delta, after.vector(), before.vector())
	total := floats.Sum(delta[:4])
	if total <= 0 {
		return 0, fmt.Errorf("%w: no cpu time elapsed", ErrMalformed)
	}
	return 100 * (1 - delta[3]/total), nil
}

// MemInfo holds /proc/meminfo totals in kB.
type MemInfo struct {
	Total      uint64
	Free       uint64
	Available  uint64
	UsePercent float64
}

// MemInfo reads /proc/meminfo. Usage counts reclaimable memory as free.
func (p *Probe) MemInfo() (MemInfo, error) {
	data, err := p.FS.ReadFile(procMeminfo)
	if err != nil {
		return MemInfo{}, fmt.Errorf("failed to read %s: %w", procMeminfo, err)
	}

	want := map[string]*uint64{}
	var info MemInfo
	want["MemTotal:"] = &info.Total
	want["MemFree:"] = &info.Free
	want["MemAvailable:"] = &info.Available

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		dst, ok := want[fields[0]]
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return MemInfo{}, fmt.Errorf("%w: %s %s: %v", ErrMalformed, procMeminfo, fields[0], err)
		}
		*dst = n
		delete(want, fields[0])
	}
	if len(want) > 0 {
		return MemInfo{}, fmt.Errorf("%w: %s is missing %d fields", ErrMalformed, procMeminfo, len(want))
	}
	if info.Total == 0 {
		return MemInfo{}, fmt.Errorf("%w: MemTotal is zero", ErrMalformed)
	}
	info.UsePercent = 100 * (1 - float64(info.Available)/float64(info.Total))
	return info, nil
}

// DiskUsageAll runs df -k and parses every filesystem it lists.
func (p *Probe) DiskUsageAll(ctx context.Context) ([]DiskInfo, error) {
	dfPath := p.DFPath
	if dfPath == "" {
		dfPath = DefaultDFPath
	}
	stdout, stderr, err := p.Commands.BuildCommand(ctx, dfPath, "-k").Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w (stderr: %s)", dfPath, err, strings.TrimSpace(string(stderr)))
	}
	return ParseDF(string(stdout))
}
