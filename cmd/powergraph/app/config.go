package app

import (
	"flag"
	"fmt"
	"strings"
)

const (
	defaultWidth  = 1024
	defaultHeight = 400
)

// Config holds the plot parameters, populated from the command line.
type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	FontPath   string

	Width  int
	Height int
}

// NewConfigFromCLI parses and validates the command line flags.
func NewConfigFromCLI() (*Config, error) {
	var config Config

	flag.StringVar(&config.DBPath, "db", "", "Path to the rfsentry database file")
	flag.Int64Var(&config.SessionID, "session", 0, "Session to plot (0 lists available sessions)")
	flag.StringVar(&config.OutputFile, "o", "power.png", "Output PNG file")
	flag.StringVar(&config.FontPath, "font", "", "Path to a TTF font for axis labels")
	flag.IntVar(&config.Width, "width", defaultWidth, "Plot width in pixels")
	flag.IntVar(&config.Height, "height", defaultHeight, "Plot height in pixels")
	flag.Parse()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("no database file provided (-db)")
	}
	if c.SessionID != 0 {
		if c.OutputFile == "" {
			return fmt.Errorf("no output file provided (-o)")
		}
		if !strings.HasSuffix(c.OutputFile, ".png") {
			return fmt.Errorf("output file must end in .png: %s", c.OutputFile)
		}
		if c.FontPath == "" {
			return fmt.Errorf("no font file provided (-font), a TTF is required for labels")
		}
	}
	if c.Width < 320 || c.Height < 200 {
		return fmt.Errorf("plot too small: %dx%d, minimum is 320x200", c.Width, c.Height)
	}
	return nil
}
