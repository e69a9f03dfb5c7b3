package system

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// Memory is a snapshot of host memory in bytes.
type Memory struct {
	Total     uint64
	Available uint64
	UsedPct   float64
}

func ReadMemory() (Memory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	return Memory{Total: vm.Total, Available: vm.Available, UsedPct: vm.UsedPercent}, nil
}

func (m Memory) String() string {
	return fmt.Sprintf("%.1f/%.1f GiB free (%.0f%% used)",
		float64(m.Available)/(1<<30), float64(m.Total)/(1<<30), m.UsedPct)
}

// EstimateRecording returns the expected size in bytes of an encoded stream
// at bitrate bits/s for the given number of seconds.
func EstimateRecording(bitrate int, seconds float64) uint64 {
	if bitrate <= 0 || seconds <= 0 {
		return 0
	}
	return uint64(float64(bitrate) / 8 * seconds)
}

// CheckHeadroom reports an error if need bytes would not fit in free memory.
func CheckHeadroom(m Memory, need uint64) error {
	if m.Available == 0 || need < m.Available {
		return nil
	}
	return fmt.Errorf("recording needs ~%d MiB but only %d MiB are available",
		need>>20, m.Available>>20)
}
