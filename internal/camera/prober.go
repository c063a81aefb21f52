package camera

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/camlink/camerad/internal/logging"
)

// CommandExecutor runs the external introspection tool against a
// device. Implementations must honor the context deadline.
type CommandExecutor interface {
	Execute(ctx context.Context, devicePath string, args ...string) (string, error)
}

// DeviceChecker reports whether a device node exists.
type DeviceChecker interface {
	Exists(devicePath string) bool
}

type v4l2CtlExecutor struct{}

func (v4l2CtlExecutor) Execute(ctx context.Context, devicePath string, args ...string) (string, error) {
	cmdArgs := append([]string{"--device", devicePath}, args...)
	out, err := exec.CommandContext(ctx, "v4l2-ctl", cmdArgs...).Output()
	return string(out), err
}

type statDeviceChecker struct{}

func (statDeviceChecker) Exists(devicePath string) bool {
	_, err := os.Stat(devicePath)
	return err == nil
}

// Prober runs v4l2-ctl introspection against devices and parses the
// output into capability probes. Every invocation has a hard timeout;
// failures produce structured probes, never errors.
type Prober struct {
	executor CommandExecutor
	checker  DeviceChecker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber creates a prober with the given per-invocation timeout.
func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		executor: v4l2CtlExecutor{},
		checker:  statDeviceChecker{},
		timeout:  timeout,
		logger:   logging.GetLogger("prober"),
	}
}

// NewProberWith creates a prober with injected dependencies, for tests.
func NewProberWith(executor CommandExecutor, checker DeviceChecker, timeout time.Duration) *Prober {
	return &Prober{
		executor: executor,
		checker:  checker,
		timeout:  timeout,
		logger:   logging.GetLogger("prober"),
	}
}

// Probe runs the introspection sequence against a device and returns a
// capability probe. The result always has Diagnostics.Attempted set;
// failures carry an error code instead of returning a Go error.
func (p *Prober) Probe(ctx context.Context, devicePath string) *CapabilityProbe {
	start := time.Now()
	probe := &CapabilityProbe{
		DevicePath: devicePath,
		Timestamp:  start,
		Diagnostics: ProbeDiagnostics{
			Attempted: true,
		},
	}
	defer func() {
		probe.Diagnostics.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
	}()

	if !p.checker.Exists(devicePath) {
		probe.Diagnostics.ErrorCode = ProbeErrProcess
		probe.Diagnostics.Error = "device node does not exist"
		return probe
	}
	probe.Diagnostics.Accessible = true

	infoOut, err := p.runTimed(ctx, devicePath, "--info")
	if err != nil {
		p.failProbe(probe, err)
		return probe
	}
	probe.DeviceName = parseDeviceName(infoOut)
	probe.Driver = parseDriver(infoOut)
	probe.Diagnostics.InfoParsed = probe.DeviceName != "" || probe.Driver != ""

	formatsOut, err := p.runTimed(ctx, devicePath, "--list-formats-ext")
	if err != nil {
		p.failProbe(probe, err)
		return probe
	}

	// Later invocations union their findings into the probe.
	combined := infoOut + "\n" + formatsOut
	probe.Formats = parseFormats(combined)
	probe.Resolutions = parseResolutions(combined)
	probe.FrameRates = parseFrameRates(combined)
	probe.Diagnostics.FormatsParsed = len(probe.Formats) > 0

	if len(probe.Formats) == 0 && len(probe.Resolutions) == 0 && len(probe.FrameRates) == 0 {
		probe.Diagnostics.ErrorCode = ProbeErrParse
		probe.Diagnostics.Error = "no capabilities recognized in tool output"
		return probe
	}

	// Rate fallback only applies when the device was reachable; an
	// inaccessible device must not advertise synthetic rates.
	if len(probe.FrameRates) == 0 && probe.Diagnostics.Accessible {
		probe.FrameRates = append([]string(nil), defaultFrameRates...)
		probe.Diagnostics.FallbackRates = true
	}

	probe.Detected = true
	return probe
}

// runTimed executes one tool invocation under the prober's timeout.
func (p *Prober) runTimed(ctx context.Context, devicePath string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.executor.Execute(cctx, devicePath, args...)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return out, context.DeadlineExceeded
	}
	return out, err
}

// failProbe classifies an executor error into the probe diagnostics.
func (p *Prober) failProbe(probe *CapabilityProbe, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		probe.Diagnostics.ErrorCode = ProbeErrTimeout
	default:
		probe.Diagnostics.ErrorCode = ProbeErrProcess
	}
	probe.Diagnostics.Error = err.Error()
	p.logger.Debug("Capability probe failed",
		"device", probe.DevicePath,
		"code", probe.Diagnostics.ErrorCode,
		"error", err)
}

// FormatCodes returns just the pixel format codes of a probe.
func (p *CapabilityProbe) FormatCodes() []string {
	codes := make([]string, len(p.Formats))
	for i, f := range p.Formats {
		codes[i] = f.Code
	}
	return codes
}

// String renders a short summary for logs.
func (p *CapabilityProbe) String() string {
	var b strings.Builder
	b.WriteString(p.DevicePath)
	if p.Detected {
		b.WriteString(" detected")
	} else {
		b.WriteString(" failed:")
		b.WriteString(p.Diagnostics.ErrorCode)
	}
	return b.String()
}
