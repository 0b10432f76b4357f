package comms

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTelemetry_Counters(t *testing.T) {
	telem := NewTelemetry(0)

	telem.RecordUplink()
	telem.RecordUplink()
	telem.RecordDownlink()
	telem.RecordFailure(Uplink, errors.New("read failed"))
	telem.RecordFailure(Downlink, errors.New("write failed"))
	telem.RecordFailure(Downlink, nil)

	assert.Equal(t, uint64(2), telem.PacketsUp())
	assert.Equal(t, uint64(1), telem.PacketsDown())
	assert.Equal(t, uint64(1), telem.FailedPacketsUp())
	assert.Equal(t, uint64(2), telem.FailedPacketsDown())

	want := TelemetrySnapshot{
		PacketsUp:         2,
		PacketsDown:       1,
		FailedPacketsUp:   1,
		FailedPacketsDown: 2,
		Errors:            []string{"uplink: read failed", "downlink: write failed"},
	}
	if diff := cmp.Diff(want, telem.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTelemetry_ErrorsBoundedAndOrdered(t *testing.T) {
	telem := NewTelemetry(3)
	for i := 0; i < 5; i++ {
		telem.RecordFailure(Downlink, fmt.Errorf("e%d", i))
	}

	assert.Equal(t, []string{"downlink: e2", "downlink: e3", "downlink: e4"}, telem.Errors())
	assert.Equal(t, uint64(5), telem.FailedPacketsDown())
}

func TestTelemetry_ErrorsReturnsCopy(t *testing.T) {
	telem := NewTelemetry(0)
	telem.RecordFailure(Uplink, errors.New("x"))

	errs := telem.Errors()
	errs[0] = "mutated"
	assert.Equal(t, []string{"uplink: x"}, telem.Errors())
	assert.NotNil(t, NewTelemetry(0).Errors())
}

func TestTelemetry_Concurrent(t *testing.T) {
	telem := NewTelemetry(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				telem.RecordUplink()
				telem.RecordDownlink()
				telem.RecordFailure(Uplink, errors.New("x"))
				_ = telem.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := telem.Snapshot()
	assert.Equal(t, uint64(800), snap.PacketsUp)
	assert.Equal(t, uint64(800), snap.PacketsDown)
	assert.Equal(t, uint64(800), snap.FailedPacketsUp)
	assert.Len(t, snap.Errors, 10)
}
