package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"

	"taskdesk/internal/util"
)

// Config holds the application configuration.
type Config struct {
	// Addr is the HTTP listen address of the local API.
	Addr string
	// DataPath is the backing file. Its extension selects the backend.
	DataPath string
	// StaticDir optionally holds a built frontend.
	StaticDir string
	LogLevel  slog.Level
	// ExportPath, when set, writes a CSV export and exits instead of serving.
	ExportPath string
}

// LoadDotEnv reads variables from the given .env files into the process
// environment. Missing files are ignored; a file that cannot be read or
// parsed is an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from command line arguments, using
// TASKDESK_* environment variables as defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("taskdesk", flag.ContinueOnError)
	addr := fs.String("addr", util.EnvOrDefault("TASKDESK_ADDR", "127.0.0.1:8080"), "HTTP listen address")
	data := fs.String("data", util.EnvOrDefault("TASKDESK_DATA", "todo_data.json"), "Path to the task data file (.json, .yaml or .db)")
	static := fs.String("static", util.EnvOrDefault("TASKDESK_STATIC_DIR", ""), "Directory with a built frontend")
	level := fs.String("log-level", util.EnvOrDefault("TASKDESK_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	exportPath := fs.String("export", "", "Write all tasks to this CSV file and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:       strings.TrimSpace(*addr),
		DataPath:   strings.TrimSpace(*data),
		StaticDir:  strings.TrimSpace(*static),
		LogLevel:   util.ParseLogLevel(*level),
		ExportPath: strings.TrimSpace(*exportPath),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required settings are present.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data file path must not be empty")
	}
	if c.ExportPath == "" && c.Addr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}
