package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"rfsentry/internal/storage"
)

// Run plots one session's power history, or lists sessions when none is
// selected.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil {
		return fmt.Errorf("database file '%s': %w", config.DBPath, err)
	}

	store := storage.New(config.DBPath)
	defer store.Close()

	if config.SessionID == 0 {
		return listSessions(ctx, store, logger)
	}
	return renderSession(ctx, store, config, logger)
}

func listSessions(ctx context.Context, store *storage.Store, logger *slog.Logger) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		logger.Info("no sessions in database")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("  [%d] %s (device %d, %s) started %s\n",
			s.ID, s.DeviceName, s.DeviceIndex, s.Mode, s.StartTime.Local().Format(time.DateTime))
	}
	return nil
}

func renderSession(ctx context.Context, store *storage.Store, config *Config, logger *slog.Logger) error {
	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", config.SessionID, err)
	}

	logger.Info("reading session data",
		slog.Int64("sessionID", session.ID),
		slog.String("device", session.DeviceName))

	iter, err := store.Readings(ctx, session.ID)
	if err != nil {
		return err
	}
	defer iter.Close()

	var series Series
	for iter.Next(ctx) {
		r := iter.Current()
		series.Times = append(series.Times, r.Timestamp)
		series.Power = append(series.Power, r.PowerDb)
	}
	if err = iter.Err(); err != nil {
		return err
	}
	if len(series.Times) == 0 {
		return fmt.Errorf("session %d has no readings", session.ID)
	}

	detections, err := store.Detections(ctx, session.ID)
	if err != nil {
		return err
	}
	marks := make([]time.Time, len(detections))
	for i, d := range detections {
		marks[i] = d.Timestamp
	}

	renderConfig := RenderConfig{
		Width:    config.Width,
		Height:   config.Height,
		FontPath: config.FontPath,
		Title: fmt.Sprintf("%s - session %d (%s readings)",
			session.DeviceName, session.ID, humanize.Comma(int64(len(series.Times)))),
	}
	if threshold, ok := sessionThreshold(session); ok {
		renderConfig.ThresholdDb = threshold
		renderConfig.HasThreshold = true
	}

	renderer, err := NewRenderer(renderConfig)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	defer renderer.Close()

	logger.Info("rendering power history",
		slog.String("destination", config.OutputFile),
		slog.Int("readings", len(series.Times)),
		slog.Int("detections", len(marks)))

	img, err := renderer.Render(series, marks)
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	return png.Encode(out, img)
}

// sessionThreshold digs the detection threshold out of the device
// configuration recorded with the session, if any.
func sessionThreshold(session *storage.Session) (float64, bool) {
	if session.Config == nil {
		return 0, false
	}

	var config struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := json.Unmarshal([]byte(*session.Config), &config); err != nil || config.Threshold == nil {
		return 0, false
	}
	return *config.Threshold, true
}
