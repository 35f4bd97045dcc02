package rknn

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// CoreType specifies the CPU core type
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// ParseCoreType converts a configuration value of fast|slow|all into a
// CoreType
func ParseCoreType(val string) (CoreType, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "fast":
		return FastCores, nil
	case "slow":
		return SlowCores, nil
	case "", "all":
		return AllCores, nil
	default:
		return AllCores, fmt.Errorf("unknown core type %q", val)
	}
}

// platformCores lists the fast and slow CPU core numbers per Rockchip
// platform.  Platforms with a single cluster list the same cores for both.
var platformCores = map[string]struct{ fast, slow []int }{
	"rk3562": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3566": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3568": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3576": {fast: []int{4, 5, 6, 7}, slow: []int{0, 1, 2, 3}},
	"rk3582": {fast: []int{4, 5}, slow: []int{0, 1, 2, 3}},
	"rk3588": {fast: []int{4, 5, 6, 7}, slow: []int{0, 1, 2, 3}},
}

// PlatformCores returns the CPU core numbers of the given core type for the
// platform string of rk3562|rk3566|rk3568|rk3576|rk3582|rk3588
func PlatformCores(platform string, ct CoreType) ([]int, error) {

	p, ok := platformCores[strings.ToLower(strings.TrimSpace(platform))]

	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}

	switch ct {
	case FastCores:
		return p.fast, nil
	case SlowCores:
		return p.slow, nil
	}

	// union of both clusters, single cluster platforms list the same cores
	seen := make(map[int]bool)
	all := make([]int, 0, len(p.fast)+len(p.slow))

	for _, c := range append(append([]int{}, p.slow...), p.fast...) {
		if !seen[c] {
			seen[c] = true
			all = append(all, c)
		}
	}

	return all, nil
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// SetCPUAffinity sets the CPU Affinity of the program to run on the
// specified cores
func SetCPUAffinity(cores []int) error {

	var set unix.CPUSet

	for _, c := range cores {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// SetCPUAffinityByPlatform sets the CPU Affinity of the program to run on the
// cores of the given type for the platform
func SetCPUAffinityByPlatform(platform string, ct CoreType) error {

	cores, err := PlatformCores(platform, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(cores)
}
