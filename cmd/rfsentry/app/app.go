package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rfsentry/internal/calib"
	"rfsentry/internal/detect"
	"rfsentry/internal/monitor"
	"rfsentry/internal/sdr"
	"rfsentry/internal/sdr/rtl"
	"rfsentry/internal/sdr/sim"
	"rfsentry/internal/storage"
)

// Demo mode signal shape, expressed in displayed dBm. Mirrors what a quiet
// band with intermittent transmissions looks like on a real dongle.
const (
	demoNoiseFloorDb = -65.0
	demoNoiseJitter  = 5.0
	demoBurstProb    = 0.15
	demoBurstPowerDb = -40.0
	demoCarrierDb    = -35.0
	demoCarrierPPM   = 12.0 // simulated tuner drift in calibration demo
	demoBlockDelay   = 100 * time.Millisecond
)

// Options select the run mode from the command line.
type Options struct {
	Demo      bool
	Calibrate bool
}

// Run wires the configured devices into a monitor, drives the terminal
// display until the context is cancelled, then shuts everything down.
// The returned error is fatal for the whole process; per-device failures
// surface only in the snapshot.
func Run(ctx context.Context, config *Config, opts Options, logger *slog.Logger) error {
	if opts.Calibrate {
		if err := config.ValidateCalibration(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	var store *storage.Store
	var sink *storage.AsyncSink
	if config.Storage.Enabled {
		var err error
		if store, sink, err = createStorage(ctx, config, opts, logger); err != nil {
			return fmt.Errorf("creating storage: %w", err)
		}
		defer store.Close()
		defer sink.Close()
	}

	devices, err := createDevices(config, opts, sink, logger)
	if err != nil {
		return fmt.Errorf("creating devices: %w", err)
	}

	monitorOpts := []func(*monitor.Monitor){
		monitor.WithLogger(logger),
		monitor.WithPowerOffset(*config.Detection.ReferenceOffset),
	}
	if sink != nil {
		monitorOpts = append(monitorOpts, monitor.WithReadingSink(sink))
	}

	mon, err := monitor.New(devices, monitorOpts...)
	if err != nil {
		return err
	}

	if err = mon.Start(ctx); err != nil {
		if errors.Is(err, monitor.ErrNoUsableDevices) {
			return fmt.Errorf("all configured devices failed to open: %w", err)
		}
		return err
	}

	renderer := NewRenderer(os.Stdout, config.Display)
	renderer.Header(config.Devices, opts.Demo)

	ticker := time.NewTicker(time.Duration(config.Display.RefreshInterval))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			renderer.Render(mon.Snapshot())
		}
	}

	mon.Stop()
	renderer.Summary(mon.Snapshot())

	logger.Info("monitor stopped")
	return nil
}

func createDevices(config *Config, opts Options, sink *storage.AsyncSink, logger *slog.Logger) ([]*monitor.Device, error) {
	devices := make([]*monitor.Device, 0, len(config.Devices))

	for _, dc := range config.Devices {
		cfg := sdr.Config{
			Index:         dc.Index,
			Name:          dc.Name,
			CenterFreqHz:  dc.CenterFrequency,
			SampleRateHz:  dc.SampleRate,
			Gain:          float64(dc.Gain),
			CorrectionPPM: dc.PPMCorrection,
			BlockSize:     config.Detection.BlockSize,
		}

		var source sdr.Source
		if opts.Demo {
			source = createDemoSource(config, opts, cfg)
		} else {
			s, err := rtl.New(cfg, rtl.WithLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("device %q: %w", dc.Name, err)
			}
			source = s
		}

		dev := monitor.Device{Config: cfg, Source: source}
		if opts.Calibrate {
			analyzer, err := calib.New(dc.Index,
				config.Calibration.ReferenceFrequency,
				config.Calibration.BinWidth,
				config.Calibration.Bins,
				config.Calibration.Window)
			if err != nil {
				return nil, fmt.Errorf("device %q: %w", dc.Name, err)
			}
			dev.Calibrator = analyzer
		} else {
			var detectOpts []func(*detect.Detector)
			if sink != nil {
				detectOpts = append(detectOpts, detect.WithSink(sink))
			}
			dev.Detector = detect.New(dc.Index, dc.CenterFrequency, dc.Threshold, config.Detection.Debounce, detectOpts...)
		}

		devices = append(devices, &dev)
	}

	return devices, nil
}

// createDemoSource builds a synthetic receiver. The sim source works on
// the raw (pre-offset) scale, so displayed levels are shifted back by the
// reference offset here.
func createDemoSource(config *Config, opts Options, cfg sdr.Config) *sim.Source {
	offset := *config.Detection.ReferenceOffset

	simOpts := sim.Options{
		NoiseFloorDb:     demoNoiseFloorDb - offset,
		NoiseJitterDb:    demoNoiseJitter,
		BurstProbability: demoBurstProb,
		BurstPowerDb:     demoBurstPowerDb - offset,
		BlockDelay:       demoBlockDelay,
		Seed:             int64(cfg.Index) + 1,
	}

	if opts.Calibrate {
		simOpts.BurstProbability = 0
		simOpts.NoiseJitterDb = 1
		simOpts.CarrierFreqHz = config.Calibration.ReferenceFrequency * (1 + demoCarrierPPM/1e6)
		simOpts.CarrierPowerDb = demoCarrierDb - offset
		simOpts.CarrierWidthHz = config.Calibration.BinWidth
	}

	return sim.New(cfg, simOpts)
}

func createStorage(ctx context.Context, config *Config, opts Options, logger *slog.Logger) (*storage.Store, *storage.AsyncSink, error) {
	dataDir := config.Storage.DataDirectory

	stat, err := os.Stat(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("storage directory '%s': %w", dataDir, err)
	}
	if !stat.IsDir() {
		return nil, nil, fmt.Errorf("invalid storage directory '%s'", dataDir)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("rfsentry_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	store := storage.New(dbPath)

	mode := string(monitor.ModeDetect)
	if opts.Calibrate {
		mode = string(monitor.ModeCalibrate)
	}

	sessions := make(map[int]int64, len(config.Devices))
	for _, dc := range config.Devices {
		sessionID, err := store.CreateSession(ctx, dc.Name, dc.Index, mode, dc)
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("creating session for device %q: %w", dc.Name, err)
		}
		sessions[dc.Index] = sessionID
	}

	sink := storage.NewAsyncSink(store, sessions, storage.WithSinkLogger(logger))

	logger.Info("logging to database", slog.String("path", dbPath))
	return store, sink, nil
}
