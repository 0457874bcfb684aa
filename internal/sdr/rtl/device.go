package rtl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"rfsentry/internal/sdr"
)

const (
	Runtime = "rtl_sdr"
	Device  = "RTL-SDR"
)

// WithLogger sets the logger for the source. Without it, stderr chatter
// from the capture tool is discarded.
func WithLogger(logger *slog.Logger) func(s *Source) {
	return func(s *Source) {
		s.logger = logger.With(
			slog.String("device", Device),
			slog.Int("deviceIndex", s.config.Index),
		)
	}
}

// Source drives one RTL-SDR dongle through the `rtl_sdr` capture tool.
// The tool is run as a child process streaming raw unsigned 8-bit I/Q
// pairs on stdout; each ReadBlock pulls one full block off the pipe and
// converts it to complex baseband samples.
type Source struct {
	config  sdr.Config
	binPath string

	cmd    *exec.Cmd
	stdout *bufio.Reader
	cancel context.CancelFunc
	ctx    context.Context

	raw []byte // reused read buffer, 2 bytes per sample

	mu     sync.Mutex
	opened bool

	logger *slog.Logger
}

// New creates a Source for the given device configuration. Configuration
// errors are fatal here; whether the capture tool and the dongle are
// actually present is only known at Open.
func New(config sdr.Config, options ...func(s *Source)) (*Source, error) {
	if err := Validate(&config); err != nil {
		return nil, err
	}

	s := Source{
		config: config,
		raw:    make([]byte, 2*config.BlockSize),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Open starts the capture process. A failure here marks the device
// unavailable; the caller excludes it from the active set.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("rtl: device %d already open", s.config.Index)
	}

	binPath, err := sdr.FindRuntime(Runtime)
	if err != nil {
		return fmt.Errorf("%w: %w", sdr.ErrUnavailable, err)
	}
	s.binPath = binPath

	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.start(); err != nil {
		s.cancel()
		return fmt.Errorf("%w: %w", sdr.ErrUnavailable, err)
	}

	s.opened = true
	return nil
}

func (s *Source) start() error {
	args, err := Args(&s.config)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(s.ctx, s.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("starting command: %w", err)
	}

	go s.handleStderr(stderr)

	s.cmd = cmd
	s.stdout = bufio.NewReaderSize(stdout, len(s.raw))
	return nil
}

// ReadBlock blocks until a full block of samples has been captured.
// Unsigned 8-bit I/Q pairs are mapped onto [-1, 1).
func (s *Source) ReadBlock() (sdr.Block, error) {
	if s.stdout == nil {
		return sdr.Block{}, fmt.Errorf("%w: device %d not open", sdr.ErrIO, s.config.Index)
	}

	if _, err := io.ReadFull(s.stdout, s.raw); err != nil {
		return sdr.Block{}, fmt.Errorf("%w: reading block: %w", sdr.ErrIO, err)
	}

	samples := make([]complex64, s.config.BlockSize)
	for i := range samples {
		re := (float32(s.raw[2*i]) - 127.5) / 127.5
		im := (float32(s.raw[2*i+1]) - 127.5) / 127.5
		samples[i] = complex(re, im)
	}

	return sdr.Block{
		DeviceIndex: s.config.Index,
		Timestamp:   time.Now(),
		Samples:     samples,
	}, nil
}

// Retune restarts the capture process on a new center frequency. The tool
// takes its frequency on the command line, so a retune is a stop/start.
func (s *Source) Retune(freqHz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return fmt.Errorf("%w: device %d not open", sdr.ErrIO, s.config.Index)
	}

	s.stopProcess()

	s.config.CenterFreqHz = freqHz
	if err := s.start(); err != nil {
		return fmt.Errorf("%w: retuning to %0.0f Hz: %w", sdr.ErrIO, freqHz, err)
	}
	return nil
}

// Close terminates the capture process and releases the pipe. It is safe
// to call on a source that never opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	s.stopProcess()
	s.cancel()
	s.opened = false
	return nil
}

func (s *Source) stopProcess() {
	if s.cmd == nil {
		return
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait() // reap; exit status is expected to be non-zero after kill
	s.cmd = nil
	s.stdout = nil
}

// handleStderr drains the tool's diagnostics so the pipe never fills up.
func (s *Source) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.logger.Warn(fmt.Sprintf("%s >> %s", Runtime, line))
	}
}
