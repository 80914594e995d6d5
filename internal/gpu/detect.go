// Package gpu probes for a usable CUDA device. The result only feeds the
// options endpoint so the UI can flag the cuda choice; whether a cuda run
// actually works is decided by the engine at load time.
package gpu

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Info holds detected GPU information.
type Info struct {
	CUDAAvailable bool   `json:"cuda_available"`
	Device        string `json:"device,omitempty"` // e.g. "NVIDIA GeForce RTX 3060"
	Driver        string `json:"driver,omitempty"` // driver version string
}

var (
	cached     *Info
	detectOnce sync.Once
)

// Detect probes once per process and caches the result.
func Detect() *Info {
	detectOnce.Do(func() {
		cached = detect()
		log.Printf("[gpu] cuda_available=%v device=%q driver=%q",
			cached.CUDAAvailable, cached.Device, cached.Driver)
	})
	return cached
}

func detect() *Info {
	info := &Info{}

	// The NVIDIA kernel driver exposes its version here when loaded.
	if data, err := os.ReadFile("/proc/driver/nvidia/version"); err == nil {
		info.CUDAAvailable = true
		info.Driver = parseDriverVersion(string(data))
	}

	// Confirm via sysfs which card is bound to the nvidia driver.
	cards, _ := filepath.Glob("/sys/class/drm/card[0-9]*")
	for _, card := range cards {
		if strings.Contains(filepath.Base(card), "-") {
			continue // render nodes
		}
		driverLink, err := os.Readlink(filepath.Join(card, "device", "driver"))
		if err != nil {
			continue
		}
		if filepath.Base(driverLink) == "nvidia" {
			info.CUDAAvailable = true
			break
		}
	}

	if info.CUDAAvailable && info.Device == "" {
		info.Device = queryDeviceName()
	}

	return info
}

func parseDriverVersion(s string) string {
	// First line looks like: "NVRM version: NVIDIA ... Kernel Module  550.54.14 ..."
	line, _, _ := strings.Cut(s, "\n")
	fields := strings.Fields(line)
	for _, f := range fields {
		if strings.Count(f, ".") >= 1 && f[0] >= '0' && f[0] <= '9' {
			return f
		}
	}
	return ""
}

func queryDeviceName() string {
	bin, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return ""
	}
	out, err := exec.Command(bin, "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return name
}
