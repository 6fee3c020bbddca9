package worker

import (
	"context"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HealthStatus is a process-wide health flag. The dequeue loop reads it on
// every iteration, so it is a single atomic bool rather than anything locked;
// a monitoring goroutine is the only writer.
type HealthStatus struct {
	healthy atomic.Bool
}

// NewHealthStatus returns a flag that starts healthy.
func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.healthy.Store(true)
	return h
}

func (h *HealthStatus) Healthy() bool    { return h.healthy.Load() }
func (h *HealthStatus) Set(healthy bool) { h.healthy.Store(healthy) }

// RunGPUHealthCheck polls nvidia-smi until the context ends, flipping the
// shared flag whenever the device list can no longer be enumerated. A missing
// accelerator does not self-heal, so the loop treats an unhealthy flag as
// fatal and lets the orchestrator reschedule the process.
func RunGPUHealthCheck(ctx context.Context, status *HealthStatus, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := exec.CommandContext(checkCtx, "nvidia-smi", "-L").Run()
		cancel()

		if err != nil {
			logger.Error("nvidia-smi check failed; marking worker unhealthy", zap.Error(err))
			status.Set(false)
		} else if !status.Healthy() {
			logger.Info("nvidia-smi check recovered")
			status.Set(true)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
