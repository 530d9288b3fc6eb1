package synth

import (
	"os"
	"strings"
)

// Compute devices understood by the voice model.
const (
	DeviceGPU = "cuda:0"
	DeviceCPU = "cpu"
)

const (
	envCUDAVisibleDevices = "CUDA_VISIBLE_DEVICES"
	nvidiaDeviceNode      = "/dev/nvidia0"
)

// DeviceProbe reports the compute device jobs should run on.
type DeviceProbe func() string

// ProbeDevice picks the GPU when an NVIDIA device node is present and CUDA has not been
// hidden from the process, else the CPU.
func ProbeDevice() string {
	visible, set := os.LookupEnv(envCUDAVisibleDevices)
	if set {
		visible = strings.TrimSpace(visible)
		if visible == "" || visible == "-1" {
			return DeviceCPU
		}
	}

	_, err := os.Stat(nvidiaDeviceNode)
	if err != nil {
		return DeviceCPU
	}

	return DeviceGPU
}
