package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"rfsentry/internal/monitor"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[92m"
	ansiRed    = "\033[91m"
	ansiYellow = "\033[93m"

	barFilled = '█'
	barEmpty  = '░'

	maxNameWidth = 12
)

// Renderer draws the one-line terminal status for all devices. It only
// ever reads coordinator snapshots; it never touches core state.
type Renderer struct {
	w      io.Writer
	config DisplayConfig
}

func NewRenderer(w io.Writer, config DisplayConfig) *Renderer {
	return &Renderer{w: w, config: config}
}

// Header prints the device table once at startup.
func (r *Renderer) Header(devices []DeviceConfig, demo bool) {
	fmt.Fprintln(r.w, strings.Repeat("=", 72))
	fmt.Fprintln(r.w, "  rfsentry - RF signal monitor")
	fmt.Fprintln(r.w, strings.Repeat("=", 72))

	for _, d := range devices {
		mode := ""
		if demo {
			mode = " (demo)"
		}
		fmt.Fprintf(r.w, "    [%d] %s: %s @ %s%s, threshold %0.1f dBm\n",
			d.Index, d.Name, formatHz(d.CenterFrequency), formatHz(d.SampleRate), mode, d.Threshold)
	}

	fmt.Fprintln(r.w, strings.Repeat("=", 72))
}

// Render overwrites the status line with the latest snapshot.
func (r *Renderer) Render(snap monitor.Snapshot) {
	var b strings.Builder

	b.WriteString("\r\033[2K") // return + clear line
	b.WriteString(r.color(ansiYellow))
	b.WriteString(snap.Timestamp.Format("15:04:05"))
	b.WriteString(r.color(ansiReset))

	for _, d := range snap.Devices {
		b.WriteString(" | ")
		r.renderDevice(&b, d)
	}

	fmt.Fprint(r.w, b.String())
}

func (r *Renderer) renderDevice(b *strings.Builder, d monitor.DeviceState) {
	name := d.Name
	if len(name) > maxNameWidth {
		name = name[:maxNameWidth]
	}

	if d.Status == monitor.StatusUnavailable {
		// Distinct from a quiet band: no bar, no power figure.
		fmt.Fprintf(b, "%s%s: unavailable%s", r.color(ansiYellow), name, r.color(ansiReset))
		return
	}

	if d.Mode == monitor.ModeCalibrate {
		if d.Calibration == nil {
			fmt.Fprintf(b, "%s: sweeping...", name)
			return
		}
		fmt.Fprintf(b, "%s: %+0.1f ppm (conf %0.2f, %d sweeps)",
			name, d.Calibration.OffsetPPM, d.Calibration.Confidence, d.Calibration.Sweeps)
		return
	}

	if !d.HasReading {
		fmt.Fprintf(b, "%s: waiting...", name)
		return
	}

	color, marker := r.color(ansiGreen), " "
	if d.Detector.AboveThreshold {
		color, marker = r.color(ansiRed), "!"
	}

	fmt.Fprintf(b, "%s%s%s %s %s %0.1f dBm (%d)%s",
		color, marker, name, r.bar(d.Reading.PowerDb), r.color(ansiReset),
		d.Reading.PowerDb, d.Detector.Detections, r.color(ansiReset))
}

// Summary prints the per-device totals after shutdown.
func (r *Renderer) Summary(snap monitor.Snapshot) {
	fmt.Fprintln(r.w)

	var total uint64
	for _, d := range snap.Devices {
		switch {
		case d.Status == monitor.StatusUnavailable:
			fmt.Fprintf(r.w, "  %s: unavailable\n", d.Name)

		case d.Mode == monitor.ModeCalibrate && d.Calibration != nil:
			fmt.Fprintf(r.w, "  %s: frequency offset %+0.1f Hz (%+0.2f ppm), confidence %0.2f\n",
				d.Name, d.Calibration.OffsetHz, d.Calibration.OffsetPPM, d.Calibration.Confidence)

		case d.Mode == monitor.ModeCalibrate:
			fmt.Fprintf(r.w, "  %s: no complete calibration sweep\n", d.Name)

		case !d.HasReading:
			// Started but never completed a cycle; there is no peak to report.
			fmt.Fprintf(r.w, "  %s: no readings\n", d.Name)

		default:
			total += d.Detector.Detections
			fmt.Fprintf(r.w, "  %s: %d detections, peak %0.1f dBm\n",
				d.Name, d.Detector.Detections, d.Detector.PeakPowerDb)
		}
	}
	fmt.Fprintf(r.w, "Total detections: %d\n", total)
}

// bar renders the power level as a text progress bar over the configured
// display range.
func (r *Renderer) bar(powerDb float64) string {
	span := r.config.PowerRangeMax - r.config.PowerRangeMin
	ratio := (powerDb - r.config.PowerRangeMin) / span
	ratio = min(1, max(0, ratio))

	filled := int(ratio * float64(r.config.BarWidth))

	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < r.config.BarWidth; i++ {
		if i < filled {
			b.WriteRune(barFilled)
		} else {
			b.WriteRune(barEmpty)
		}
	}
	b.WriteByte(']')
	return b.String()
}

func (r *Renderer) color(code string) string {
	if r.config.Monochrome {
		return ""
	}
	return code
}

func formatHz(hz float64) string {
	v, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.4g %sHz", v, suffix)
}
