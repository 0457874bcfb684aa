package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	dpi      = 72
	fontSize = 12.0

	borderLeft   = 64
	borderRight  = 16
	borderTop    = 40
	borderBottom = 48

	tickMarkLen = 4
	timeTicks   = 6
	powerStepDb = 10.0
)

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorGrid       = color.RGBA{220, 220, 220, 255}
	colorFrame      = color.RGBA{80, 80, 80, 255}
	colorSeries     = color.RGBA{30, 90, 180, 255}
	colorDetection  = color.RGBA{200, 40, 40, 255}
	colorThreshold  = color.RGBA{200, 40, 40, 255}
	colorLabel      = color.RGBA{40, 40, 40, 255}
)

// Series is one device's power readings over time, in reading order.
type Series struct {
	Times []time.Time
	Power []float64
}

// RenderConfig shapes the output image.
type RenderConfig struct {
	Width    int
	Height   int
	FontPath string
	Title    string

	// ThresholdDb draws the session's detection threshold as a dashed
	// line when HasThreshold is set.
	ThresholdDb  float64
	HasThreshold bool
}

// Renderer draws a session's power history as a strip chart: time on the
// horizontal axis, dBm on the vertical, detections marked in red.
type Renderer struct {
	config   RenderConfig
	context  *freetype.Context
	fontFace font.Face
}

func NewRenderer(config RenderConfig) (*Renderer, error) {
	fontBytes, err := os.ReadFile(config.FontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(colorLabel))

	return &Renderer{
		config:  config,
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (r *Renderer) Close() error {
	if r.fontFace != nil {
		return r.fontFace.Close()
	}
	return nil
}

func (r *Renderer) Render(series Series, detections []time.Time) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	r.context.SetClip(img.Bounds())
	r.context.SetDst(img)

	plot := image.Rect(borderLeft, borderTop, r.config.Width-borderRight, r.config.Height-borderBottom)

	minDb, maxDb := powerBounds(series.Power)
	if r.config.HasThreshold {
		minDb = math.Min(minDb, math.Floor((r.config.ThresholdDb-5)/powerStepDb)*powerStepDb)
		maxDb = math.Max(maxDb, math.Ceil((r.config.ThresholdDb+5)/powerStepDb)*powerStepDb)
	}
	start := series.Times[0]
	end := series.Times[len(series.Times)-1]
	if !end.After(start) {
		end = start.Add(time.Second)
	}

	toX := func(t time.Time) int {
		ratio := float64(t.Sub(start)) / float64(end.Sub(start))
		return plot.Min.X + int(ratio*float64(plot.Dx()))
	}
	toY := func(db float64) int {
		ratio := (db - minDb) / (maxDb - minDb)
		return plot.Max.Y - int(ratio*float64(plot.Dy()))
	}

	if err := r.drawPowerScale(img, plot, minDb, maxDb, toY); err != nil {
		return nil, fmt.Errorf("drawing power scale: %w", err)
	}
	if err := r.drawTimeScale(img, plot, start, end, toX); err != nil {
		return nil, fmt.Errorf("drawing time scale: %w", err)
	}

	if r.config.HasThreshold {
		drawThreshold(img, plot, toY(r.config.ThresholdDb))
	}
	drawSeries(img, plot, series, toX, toY)
	drawDetections(img, plot, detections, start, end, toX)
	drawFrame(img, plot)

	if r.config.Title != "" {
		pt := freetype.Pt(plot.Min.X, borderTop-10)
		if _, err := r.context.DrawString(r.config.Title, pt); err != nil {
			return nil, fmt.Errorf("drawing title: %w", err)
		}
	}

	return img, nil
}

// drawPowerScale draws horizontal grid lines at 10 dB steps with labels.
func (r *Renderer) drawPowerScale(img *image.RGBA, plot image.Rectangle, minDb, maxDb float64, toY func(float64) int) error {
	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for db := minDb; db <= maxDb; db += powerStepDb {
		y := toY(db)
		for x := plot.Min.X; x < plot.Max.X; x++ {
			img.Set(x, y, colorGrid)
		}

		label := fmt.Sprintf("%0.0f", db)
		width := font.MeasureString(r.fontFace, label)
		pt := freetype.Pt(plot.Min.X-width.Round()-8, y+fontHeight/2-2)
		if _, err := r.context.DrawString(label, pt); err != nil {
			return err
		}
	}

	// Unit label in the top-left corner.
	pt := freetype.Pt(4, borderTop-10)
	_, err := r.context.DrawString("dBm", pt)
	return err
}

func (r *Renderer) drawTimeScale(img *image.RGBA, plot image.Rectangle, start, end time.Time, toX func(time.Time) int) error {
	span := end.Sub(start)

	for i := 0; i <= timeTicks; i++ {
		t := start.Add(span * time.Duration(i) / timeTicks)
		x := toX(t)

		for y := plot.Max.Y; y < plot.Max.Y+tickMarkLen; y++ {
			img.Set(x, y, colorFrame)
		}

		label := t.Local().Format("15:04:05")
		width := font.MeasureString(r.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, plot.Max.Y+tickMarkLen+14)
		if _, err := r.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

// drawSeries connects consecutive readings with vertical-step segments,
// which is cheap and good enough at one reading per pixel column.
func drawSeries(img *image.RGBA, plot image.Rectangle, series Series, toX func(time.Time) int, toY func(float64) int) {
	prevX, prevY := -1, 0
	for i := range series.Times {
		x := clamp(toX(series.Times[i]), plot.Min.X, plot.Max.X-1)
		y := clamp(toY(series.Power[i]), plot.Min.Y, plot.Max.Y-1)

		if prevX >= 0 {
			step := 1
			if y < prevY {
				step = -1
			}
			for yy := prevY; yy != y; yy += step {
				img.Set(x, yy, colorSeries)
			}
		}
		img.Set(x, y, colorSeries)

		prevX, prevY = x, y
	}
}

// drawThreshold marks the detection threshold as a dashed line.
func drawThreshold(img *image.RGBA, plot image.Rectangle, y int) {
	if y <= plot.Min.Y || y >= plot.Max.Y {
		return
	}
	for x := plot.Min.X; x < plot.Max.X; x++ {
		if (x/6)%2 == 0 {
			img.Set(x, y, colorThreshold)
		}
	}
}

func drawDetections(img *image.RGBA, plot image.Rectangle, detections []time.Time, start, end time.Time, toX func(time.Time) int) {
	for _, t := range detections {
		if t.Before(start) || t.After(end) {
			continue
		}
		x := clamp(toX(t), plot.Min.X, plot.Max.X-1)
		for y := plot.Min.Y; y < plot.Min.Y+12; y++ {
			img.Set(x, y, colorDetection)
		}
	}
}

func drawFrame(img *image.RGBA, plot image.Rectangle) {
	for x := plot.Min.X; x <= plot.Max.X; x++ {
		img.Set(x, plot.Min.Y, colorFrame)
		img.Set(x, plot.Max.Y, colorFrame)
	}
	for y := plot.Min.Y; y <= plot.Max.Y; y++ {
		img.Set(plot.Min.X, y, colorFrame)
		img.Set(plot.Max.X, y, colorFrame)
	}
}

// powerBounds pads the observed range and snaps it to 10 dB steps so the
// grid lands on round values.
func powerBounds(power []float64) (minDb, maxDb float64) {
	minDb, maxDb = math.Inf(1), math.Inf(-1)
	for _, p := range power {
		minDb = math.Min(minDb, p)
		maxDb = math.Max(maxDb, p)
	}
	if math.IsInf(minDb, 1) {
		return -100, -20
	}

	minDb = math.Floor((minDb-5)/powerStepDb) * powerStepDb
	maxDb = math.Ceil((maxDb+5)/powerStepDb) * powerStepDb
	if maxDb-minDb < 2*powerStepDb {
		maxDb = minDb + 2*powerStepDb
	}
	return minDb, maxDb
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}
