package stereotrack

import (
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"unsafe"
)

// CoreType specifies the CPU core type of a big.LITTLE SoC
type CoreType int

const (
	// SlowCores are the efficiency cores
	SlowCores CoreType = iota
	// FastCores are the performance cores
	FastCores
	// AllCores is every core on the SoC
	AllCores
)

// coreMasks holds the cpu affinity masks per platform and core type.  The
// tracking loop is sequential per frame so it benefits from staying on a
// single cluster of fast cores.
var coreMasks = map[string]map[CoreType]uintptr{
	"rk3588": {
		SlowCores: 0b00001111,
		FastCores: 0b11110000,
		AllCores:  0b11111111,
	},
	"rk3582": {
		SlowCores: 0b00001111,
		FastCores: 0b00110000,
		AllCores:  0b00111111,
	},
	"rk3576": {
		SlowCores: 0b00001111,
		FastCores: 0b11110000,
		AllCores:  0b11111111,
	},
	"rk3568": {
		SlowCores: 0b00001111,
		FastCores: 0b00001111,
		AllCores:  0b00001111,
	},
	"jetson-orin-nx": {
		SlowCores: 0b00001111,
		FastCores: 0b11110000,
		AllCores:  0b11111111,
	},
}

// SetCPUAffinity sets the CPU affinity mask of the calling OS thread
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity gets the CPU affinity mask of the calling OS thread
func GetCPUAffinity() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	return mask, nil
}

// CPUCoreMask calculates the core mask from a list of core numbers,
// eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// PinFrameLoop locks the calling goroutine to its OS thread and restricts
// that thread to the given core type of the platform.  The returned release
// function unlocks the goroutine again, call it when the frame loop exits.
func PinFrameLoop(platform string, ct CoreType) (func(), error) {

	platform = strings.ToLower(strings.TrimSpace(platform))

	masks, ok := coreMasks[platform]

	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}

	runtime.LockOSThread()

	if err := SetCPUAffinity(masks[ct]); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return runtime.UnlockOSThread, nil
}
