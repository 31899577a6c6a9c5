// Package provider contains pure functions for cloud provider logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package provider

import (
	"errors"
	"fmt"
)

// ErrNoTaskSize is returned when no Fargate task size can hold a reservation.
var ErrNoTaskSize = errors.New("no Fargate task size fits the requested resources")

// TaskSize is a valid Fargate task-level CPU/memory combination.
type TaskSize struct {
	CPUUnits  int `json:"cpu_units"`
	MemoryMiB int `json:"memory_mib"`
}

// =============================================================================
// AWS Fargate Catalog
// =============================================================================

// fargateCPU lists each CPU tier with its memory range and step, in MiB.
var fargateCPU = []struct {
	cpu, minMem, maxMem, step int
}{
	{256, 512, 512, 1},
	{256, 1024, 2048, 1024},
	{512, 1024, 4096, 1024},
	{1024, 2048, 8192, 1024},
	{2048, 4096, 16384, 1024},
	{4096, 8192, 30720, 1024},
	{8192, 16384, 61440, 4096},
	{16384, 32768, 122880, 8192},
}

// FargateTaskSizes returns every supported task size ordered by CPU, then memory.
func FargateTaskSizes() []TaskSize {
	var sizes []TaskSize
	for _, tier := range fargateCPU {
		for mem := tier.minMem; mem <= tier.maxMem; mem += tier.step {
			sizes = append(sizes, TaskSize{CPUUnits: tier.cpu, MemoryMiB: mem})
		}
	}
	return sizes
}

// FargateTaskSize picks the smallest task size that holds the summed
// container reservations.
//
// Example:
//
//	FargateTaskSize(512, 512) // TaskSize{CPUUnits: 512, MemoryMiB: 1024}
func FargateTaskSize(cpuUnits, memoryMiB int) (TaskSize, error) {
	for _, size := range FargateTaskSizes() {
		if size.CPUUnits >= cpuUnits && size.MemoryMiB >= memoryMiB {
			return size, nil
		}
	}
	return TaskSize{}, fmt.Errorf("%w: cpu=%d memory=%dMiB", ErrNoTaskSize, cpuUnits, memoryMiB)
}
