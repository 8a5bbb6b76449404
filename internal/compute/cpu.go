package compute

import (
	"runtime"
	"sync"
)

// minParallelTiles is the tile count below which the CPU backend runs inline.
const minParallelTiles = 2

type CPUBackend struct {
	workers int
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		workers: runtime.NumCPU(),
	}
}

// NewCPUBackendWorkers fixes the worker count; values below 1 mean one worker.
func NewCPUBackendWorkers(workers int) *CPUBackend {
	if workers < 1 {
		workers = 1
	}
	return &CPUBackend{workers: workers}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}
func (c *CPUBackend) Workers() int    { return c.workers }

func (c *CPUBackend) Dispatch(layout *Layout, kernel Kernel) {
	tiles := layout.Tiles()
	n := len(tiles)

	workers := c.workers
	if workers > n {
		workers = n
	}
	if n < minParallelTiles || workers <= 1 {
		for _, t := range tiles {
			layout.Run(t, kernel)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(chunk []Tile) {
			defer wg.Done()
			for _, t := range chunk {
				layout.Run(t, kernel)
			}
		}(tiles[start:end])
	}

	wg.Wait()
}

// SerialBackend runs every tile on the calling goroutine.
type SerialBackend struct{}

func NewSerialBackend() *SerialBackend { return &SerialBackend{} }

func (s *SerialBackend) Name() string    { return "serial" }
func (s *SerialBackend) Available() bool { return true }
func (s *SerialBackend) Cleanup()        {}

func (s *SerialBackend) Dispatch(layout *Layout, kernel Kernel) {
	for _, t := range layout.Tiles() {
		layout.Run(t, kernel)
	}
}
