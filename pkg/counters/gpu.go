package counters

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// GPU reads instantaneous per-device power draw through NVML. A missing
// or partially available device management layer degrades to zero-filled
// readings carrying an ErrDeviceQuery warning: a host without usable
// GPUs never aborts a sampling run.
type GPU struct {
	deviceCount int
	available   bool
	logger      log.Logger
}

type GPUOption func(*GPU)

func WithGPULogger(logger log.Logger) GPUOption {
	return func(g *GPU) {
		g.logger = logger
	}
}

// NewGPU initializes NVML for deviceCount devices. Initialization
// failure is not fatal: the returned reader serves zero readings and
// reports the degradation on each Read.
func NewGPU(deviceCount int, opts ...GPUOption) *GPU {
	gpu := &GPU{deviceCount: deviceCount}
	for _, opt := range opts {
		opt(gpu)
	}

	if deviceCount <= 0 {
		return gpu
	}

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		gpu.logger.Warn().Str("nvml", nvml.ErrorString(ret)).Msg("NVML unavailable, GPU power degraded to zero")
		return gpu
	}
	gpu.available = true

	return gpu
}

// Read returns one instantaneous power reading in watts per requested
// device index. Unavailable indices are reported as zero; the returned
// error, when non-nil, wraps ErrDeviceQuery and is a warning, never a
// reason to stop sampling.
func (g *GPU) Read() ([]float64, error) {
	readings := make([]float64, g.deviceCount)
	if g.deviceCount <= 0 {
		return readings, nil
	}
	if !g.available {
		return readings, errors.Wrap(ErrDeviceQuery, "NVML not initialized")
	}

	var queryErr error
	for i := 0; i < g.deviceCount; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			queryErr = errors.Wrapf(ErrDeviceQuery, "device %d: %s", i, nvml.ErrorString(ret))
			continue
		}
		milliwatts, ret := device.GetPowerUsage()
		if ret != nvml.SUCCESS {
			queryErr = errors.Wrapf(ErrDeviceQuery, "device %d power: %s", i, nvml.ErrorString(ret))
			continue
		}
		readings[i] = float64(milliwatts) / 1000
	}

	return readings, queryErr
}

// Close shuts NVML down. Idempotent.
func (g *GPU) Close() {
	if g.available {
		nvml.Shutdown()
		g.available = false
	}
}

// GPUDevice describes one NVML device for discovery purposes.
type GPUDevice struct {
	Index  int
	Name   string
	PowerW float64
}

// EnumerateGPUs lists the devices NVML can see with their current power
// draw. Used by the devices command to size --gpu-count.
func EnumerateGPUs() ([]GPUDevice, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errors.Wrapf(ErrDeviceQuery, "NVML init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errors.Wrapf(ErrDeviceQuery, "device count: %s", nvml.ErrorString(ret))
	}

	devices := make([]GPUDevice, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		d := GPUDevice{Index: i}
		if name, ret := device.GetName(); ret == nvml.SUCCESS {
			d.Name = name
		}
		if milliwatts, ret := device.GetPowerUsage(); ret == nvml.SUCCESS {
			d.PowerW = float64(milliwatts) / 1000
		}
		devices = append(devices, d)
	}

	return devices, nil
}
