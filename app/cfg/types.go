package cfg

import "time"

type Command string

const (
	CommandServe    Command = "serve"
	CommandDiscover Command = "discover"
	CommandEnrich   Command = "enrich"
	CommandRescore  Command = "rescore"
)

type Cfg struct {
	Command Command

	// Storage
	DataFile  string
	BackupDir string
	HistoryDB string

	// HTTP server
	Port     string
	BaseUrl  string
	AdminPIN string

	// Scoring documents; empty selects the embedded defaults
	RulesFile string
	FlagsFile string

	// Metadata provider
	TMDBToken       string
	TMDBBaseURL     string
	RequestInterval time.Duration

	Discover DiscoverCfg
	Enrich   EnrichCfg

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

type DiscoverCfg struct {
	StartYear      int
	EndYear        int
	MinVoteCount   int
	MinVoteAverage float64
	MaxPages       int
}

type EnrichCfg struct {
	Start           int
	End             int
	CheckpointEvery int
}
