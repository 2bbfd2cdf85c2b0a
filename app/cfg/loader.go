package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DataFile  string `long:"data-file" env:"DATA_FILE" default:"./data/wokeometro_base.json" description:"JSON catalog of titles"`
	BackupDir string `long:"backup-dir" env:"BACKUP_DIR" description:"Directory for pre-write backups (defaults to <data dir>/backups)"`
	HistoryDB string `long:"history-db" env:"HISTORY_DB" default:"./data/history.db" description:"SQLite database for the review history"`

	// HTTP server
	Port     string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl  string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://wokeometro.example.com)"`
	AdminPIN string `long:"admin-pin" env:"ADMIN_PIN" description:"Editor PIN required for review updates"`

	// Scoring documents
	RulesFile string `long:"rules-file" env:"RULES_FILE" description:"YAML signal rule set (embedded default when empty)"`
	FlagsFile string `long:"flags-file" env:"FLAGS_FILE" description:"YAML flag catalog (embedded default when empty)"`

	// Metadata provider
	TMDBToken       string `long:"tmdb-token" env:"TMDB_BEARER_TOKEN" description:"TMDb v4 read access token"`
	TMDBBaseURL     string `long:"tmdb-url" env:"TMDB_API_URL" default:"https://api.themoviedb.org/3" description:"TMDb API base URL"`
	RequestInterval int    `long:"request-interval" env:"TMDB_INTERVAL_MS" default:"230" description:"Minimum milliseconds between provider requests (negative disables pacing)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Wokeometro/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Madrid)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type serveCmd struct{}

type discoverCmd struct {
	StartYear      int     `long:"start-year" default:"2015" description:"First release year to discover"`
	EndYear        int     `long:"end-year" default:"2025" description:"Last release year to discover"`
	MinVoteCount   int     `long:"min-votes" default:"200" description:"Minimum provider vote count"`
	MinVoteAverage float64 `long:"min-rating" default:"5.0" description:"Minimum provider vote average"`
	MaxPages       int     `long:"max-pages" default:"10" description:"Maximum result pages per year and kind"`
}

type enrichCmd struct {
	Start           int `long:"start" default:"0" description:"First catalog index to enrich"`
	End             int `long:"end" default:"0" description:"Catalog index to stop before (0 means the end)"`
	CheckpointEvery int `long:"checkpoint-every" default:"25" description:"Persist progress every N enriched titles"`
}

type rescoreCmd struct{}

var globalCfg *Cfg

// Load parses the process arguments and environment. It returns nil, nil
// when help was requested.
func Load() (*Cfg, error) {
	cfg, err := parse(os.Args[1:])
	if err != nil || cfg == nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg
	var discover discoverCmd
	var enrich enrichCmd

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	commands := []struct {
		name, short string
		data        any
	}{
		{string(CommandServe), "Serve the HTTP API (default)", &serveCmd{}},
		{string(CommandDiscover), "Add popular titles from the metadata provider", &discover},
		{string(CommandEnrich), "Fetch metadata and auto-score catalog titles", &enrich},
		{string(CommandRescore), "Recompute auto scores from stored metadata", &rescoreCmd{}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.short, c.data); err != nil {
			return nil, fmt.Errorf("failed to register command %s: %w", c.name, err)
		}
	}

	rest, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}

	command := CommandServe
	if parser.Active != nil {
		command = Command(parser.Active.Name)
	}

	cfg := &Cfg{
		Command:         command,
		DataFile:        raw.DataFile,
		BackupDir:       raw.BackupDir,
		HistoryDB:       raw.HistoryDB,
		Port:            raw.Port,
		BaseUrl:         raw.BaseUrl,
		AdminPIN:        raw.AdminPIN,
		RulesFile:       raw.RulesFile,
		FlagsFile:       raw.FlagsFile,
		TMDBToken:       raw.TMDBToken,
		TMDBBaseURL:     raw.TMDBBaseURL,
		RequestInterval: time.Duration(raw.RequestInterval) * time.Millisecond,
		Discover: DiscoverCfg{
			StartYear:      discover.StartYear,
			EndYear:        discover.EndYear,
			MinVoteCount:   discover.MinVoteCount,
			MinVoteAverage: discover.MinVoteAverage,
			MaxPages:       discover.MaxPages,
		},
		Enrich: EnrichCfg{
			Start:           enrich.Start,
			End:             enrich.End,
			CheckpointEvery: enrich.CheckpointEvery,
		},
		UserAgent: raw.UserAgent,
		Timezone:  raw.Timezone,
		Debug:     raw.Debug,
		Version:   GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	switch c.Command {
	case CommandDiscover, CommandEnrich:
		if c.TMDBToken == "" {
			return fmt.Errorf("TMDB_BEARER_TOKEN is required for the %s command", c.Command)
		}
	}
	if c.Command == CommandDiscover && c.Discover.StartYear > c.Discover.EndYear {
		return fmt.Errorf("invalid year range %d-%d", c.Discover.StartYear, c.Discover.EndYear)
	}
	if c.Command == CommandEnrich && c.Enrich.Start < 0 {
		return fmt.Errorf("enrich start index must not be negative, got %d", c.Enrich.Start)
	}
	return nil
}

// PublicURL is the base URL used for absolute links, falling back to the
// local listener.
func (c *Cfg) PublicURL() string {
	if c.BaseUrl != "" {
		return c.BaseUrl
	}
	return fmt.Sprintf("http://localhost:%s", c.Port)
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
