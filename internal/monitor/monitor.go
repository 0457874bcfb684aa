// Package monitor coordinates the per-device acquisition loops and
// publishes the aggregated snapshot consumed by presentation and logging.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"rfsentry/internal/calib"
	"rfsentry/internal/detect"
	"rfsentry/internal/dsp"
	"rfsentry/internal/sdr"
)

// ErrNoUsableDevices is returned by Start when every configured receiver
// failed to open. A partial failure is not an error; the failed devices are
// just marked unavailable in the snapshot.
var ErrNoUsableDevices = errors.New("monitor: no usable devices")

// readRetryDelay keeps a loop whose receiver keeps failing from spinning.
const readRetryDelay = 250 * time.Millisecond

// ReadingSink receives every successful power reading, e.g. for
// persistence. Implementations must not block the acquisition loop.
type ReadingSink interface {
	Reading(dsp.Reading)
}

// Device binds one receiver to its consumer. Exactly one of Detector or
// Calibrator must be set; the choice is fixed for the process lifetime.
type Device struct {
	Config     sdr.Config
	Source     sdr.Source
	Detector   *detect.Detector
	Calibrator *calib.Analyzer
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) func(*Monitor) {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithReadingSink forwards successful readings to sink.
func WithReadingSink(sink ReadingSink) func(*Monitor) {
	return func(m *Monitor) {
		m.readings = sink
	}
}

// WithPowerOffset shifts estimator output from the full-scale-relative
// scale towards calibrated dBm.
func WithPowerOffset(offsetDb float64) func(*Monitor) {
	return func(m *Monitor) {
		m.offsetDb = offsetDb
	}
}

// Monitor owns one independent acquisition loop per configured device.
// Each loop performs blocking hardware reads, so loops run as their own
// goroutines and only meet at the snapshot.
type Monitor struct {
	devices  []*Device
	offsetDb float64

	mu    sync.RWMutex
	slots []DeviceState

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
	stopOnce sync.Once

	readings ReadingSink
	logger   *slog.Logger
}

// New creates a coordinator for the given devices. Device indexes must be
// unique and every device needs exactly one consumer.
func New(devices []*Device, options ...func(*Monitor)) (*Monitor, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("monitor: no devices configured")
	}

	seen := make(map[int]struct{}, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.Config.Index]; ok {
			return nil, fmt.Errorf("monitor: duplicate device index %d", d.Config.Index)
		}
		seen[d.Config.Index] = struct{}{}

		if (d.Detector == nil) == (d.Calibrator == nil) {
			return nil, fmt.Errorf("monitor: device %d needs exactly one of detector or calibrator", d.Config.Index)
		}
		if d.Source == nil {
			return nil, fmt.Errorf("monitor: device %d has no sample source", d.Config.Index)
		}
	}

	m := Monitor{
		devices: devices,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m, nil
}

// Start opens every receiver and launches the acquisition loops. A device
// whose receiver fails to open is recorded as unavailable and excluded;
// other devices continue unaffected. Only zero usable devices is fatal.
func (m *Monitor) Start(ctx context.Context) error {
	if m.started {
		return fmt.Errorf("monitor: already started")
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)

	m.slots = make([]DeviceState, len(m.devices))
	for i, d := range m.devices {
		mode := ModeDetect
		if d.Calibrator != nil {
			mode = ModeCalibrate
		}
		m.slots[i] = DeviceState{
			Index:       d.Config.Index,
			Name:        d.Config.Name,
			FrequencyHz: d.Config.CenterFreqHz,
			Mode:        mode,
			Status:      StatusUnavailable,
		}
	}

	var usable []int
	for i, d := range m.devices {
		if err := d.Source.Open(ctx); err != nil {
			m.logger.Error("device failed to open, excluding from monitoring",
				slog.Int("deviceIndex", d.Config.Index),
				slog.String("device", d.Config.Name),
				slog.String("error", err.Error()))
			continue
		}

		m.slots[i].Status = StatusActive
		usable = append(usable, i)
	}

	if len(usable) == 0 {
		m.cancel()
		return ErrNoUsableDevices
	}

	startGate := make(chan struct{})
	for _, i := range usable {
		m.wg.Add(1)
		go m.run(ctx, i, m.devices[i], startGate)
	}
	close(startGate)

	return nil
}

// Snapshot returns the most recently published view. The read never blocks
// on the acquisition loops beyond the slot lock; the returned value shares
// no memory with writer-owned state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]DeviceState, len(m.slots))
	for i, s := range m.slots {
		devices[i] = copyState(s)
	}

	return Snapshot{
		Timestamp: time.Now(),
		Devices:   devices,
	}
}

// Stop signals all loops, waits for each to finish its in-flight read and
// close its receiver, then returns. Shutdown latency is bounded by one
// block capture per device. Safe to call more than once.
func (m *Monitor) Stop() {
	if !m.started {
		return
	}
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// run is one device's acquisition cycle: read block, estimate power, feed
// the consumer, publish the slot. The blocking read cannot be interrupted
// mid-call, so cancellation is checked immediately after each read returns.
func (m *Monitor) run(ctx context.Context, slot int, dev *Device, startGate <-chan struct{}) {
	defer m.wg.Done()
	defer func() {
		if err := dev.Source.Close(); err != nil {
			m.logger.Warn("closing device",
				slog.Int("deviceIndex", dev.Config.Index),
				slog.String("error", err.Error()))
		}
		m.setSlot(slot, func(s *DeviceState) { s.Status = StatusStopped })
	}()

	<-startGate

	m.logger.Info("device loop started",
		slog.Int("deviceIndex", dev.Config.Index),
		slog.String("device", dev.Config.Name),
		slog.String("mode", string(m.slotMode(slot))))

	if dev.Calibrator != nil {
		m.runCalibrate(ctx, slot, dev)
		return
	}
	m.runDetect(ctx, slot, dev)
}

func (m *Monitor) runDetect(ctx context.Context, slot int, dev *Device) {
	for {
		if ctx.Err() != nil {
			return
		}

		block, err := dev.Source.ReadBlock()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.recordReadError(ctx, slot, dev, err)
			continue
		}

		reading, err := dsp.Estimate(block, m.offsetDb)
		if err != nil {
			// Malformed block: skip the cycle, prior reading stands.
			m.recordReadError(ctx, slot, dev, err)
			continue
		}

		dev.Detector.Observe(reading)
		state := dev.Detector.State()

		if m.readings != nil {
			m.readings.Reading(reading)
		}

		m.setSlot(slot, func(s *DeviceState) {
			s.Reading = reading
			s.HasReading = true
			s.Cycles++
			s.Detector = state
		})
	}
}

// runCalibrate sweeps the analyzer's bins, retuning before each read, and
// publishes a fresh offset estimate after every completed sweep. A failed
// bin invalidates the sweep in progress and the sweep restarts from the
// first bin, so a committed sweep never mixes bins from different passes.
func (m *Monitor) runCalibrate(ctx context.Context, slot int, dev *Device) {
	bins := dev.Calibrator.Bins()

	bin := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := dev.Source.Retune(dev.Calibrator.BinFrequency(bin)); err != nil {
			m.recordReadError(ctx, slot, dev, err)
			dev.Calibrator.Discard()
			bin = 0
			continue
		}

		block, err := dev.Source.ReadBlock()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.recordReadError(ctx, slot, dev, err)
			dev.Calibrator.Discard()
			bin = 0
			continue
		}

		reading, err := dsp.Estimate(block, m.offsetDb)
		if err != nil {
			m.recordReadError(ctx, slot, dev, err)
			dev.Calibrator.Discard()
			bin = 0
			continue
		}

		dev.Calibrator.Record(bin, reading.PowerDb)

		var result *calib.Result
		if bin == bins-1 {
			if r, ok := dev.Calibrator.Estimate(); ok {
				result = &r
			}
		}

		if m.readings != nil {
			m.readings.Reading(reading)
		}

		m.setSlot(slot, func(s *DeviceState) {
			s.Reading = reading
			s.HasReading = true
			s.Cycles++
			if result != nil {
				s.Calibration = result
			}
		})

		bin = (bin + 1) % bins
	}
}

func (m *Monitor) recordReadError(ctx context.Context, slot int, dev *Device, err error) {
	m.logger.Warn("acquisition cycle skipped",
		slog.Int("deviceIndex", dev.Config.Index),
		slog.String("error", err.Error()))
	m.setSlot(slot, func(s *DeviceState) { s.ReadErrors++ })

	select {
	case <-ctx.Done():
	case <-time.After(readRetryDelay):
	}
}

func (m *Monitor) setSlot(slot int, mutate func(*DeviceState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(&m.slots[slot])
}

func (m *Monitor) slotMode(slot int) Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots[slot].Mode
}
