// Package sysinfo collects host facts and CI environment metadata once per
// benchmark run. Collection is best-effort: any failure degrades the
// corresponding field to a zero value instead of propagating an error.
package sysinfo

import (
	"math"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Info is the host snapshot embedded into every result document.
type Info struct {
	CPU         CPUInfo    `bson:"cpu" json:"cpu"`
	Memory      MemoryInfo `bson:"memory" json:"memory"`
	OS          OSInfo     `bson:"os" json:"os"`
	Hostname    string     `bson:"hostname" json:"hostname"`
	JavaVersion string     `bson:"java_version,omitempty" json:"java_version,omitempty"`
}

// CPUInfo describes the host processor.
type CPUInfo struct {
	Model   string `bson:"model" json:"model"`
	Cores   int    `bson:"cores" json:"cores"`
	Threads int    `bson:"threads" json:"threads"`
}

// MemoryInfo describes host memory in gigabytes, rounded to 2 decimals.
type MemoryInfo struct {
	TotalGB     float64 `bson:"total_gb" json:"total_gb"`
	AvailableGB float64 `bson:"available_gb" json:"available_gb"`
}

// OSInfo describes the host operating system.
type OSInfo struct {
	Name    string `bson:"name" json:"name"`
	Version string `bson:"version" json:"version"`
	Kernel  string `bson:"kernel" json:"kernel"`
}

// Collect gathers the host snapshot.
func Collect(log logrus.FieldLogger) *Info {
	info := &Info{
		CPU: CPUInfo{Model: "Unknown"},
		OS:  OSInfo{Name: "Unknown", Version: "Unknown"},
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPU.Model = cpus[0].ModelName
	} else if err != nil {
		log.WithError(err).Warn("Failed to read CPU info")
	}

	if cores, err := cpu.Counts(false); err == nil {
		info.CPU.Cores = cores
	}

	if threads, err := cpu.Counts(true); err == nil {
		info.CPU.Threads = threads
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.Memory.TotalGB = roundGB(vm.Total)
		info.Memory.AvailableGB = roundGB(vm.Available)
	} else {
		log.WithError(err).Warn("Failed to read memory info")
	}

	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.OS.Name = h.Platform
		info.OS.Version = h.PlatformVersion
		info.OS.Kernel = h.KernelVersion
	} else {
		log.WithError(err).Warn("Failed to read OS info")
	}

	return info
}

func roundGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/(1024*1024*1024)*100) / 100
}
