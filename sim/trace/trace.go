package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every auction and task completion.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// EpisodeTrace collects decision records during one episode.
type EpisodeTrace struct {
	Level       TraceLevel
	Auctions    []AuctionRecord
	Completions []CompletionRecord
}

// NewEpisodeTrace creates an EpisodeTrace ready for recording.
func NewEpisodeTrace(level TraceLevel) *EpisodeTrace {
	return &EpisodeTrace{
		Level:       level,
		Auctions:    make([]AuctionRecord, 0),
		Completions: make([]CompletionRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (et *EpisodeTrace) Enabled() bool {
	return et != nil && et.Level == TraceLevelDecisions
}

// RecordAuction appends an auction record.
func (et *EpisodeTrace) RecordAuction(record AuctionRecord) {
	if !et.Enabled() {
		return
	}
	et.Auctions = append(et.Auctions, record)
}

// RecordCompletion appends a completion record.
func (et *EpisodeTrace) RecordCompletion(record CompletionRecord) {
	if !et.Enabled() {
		return
	}
	et.Completions = append(et.Completions, record)
}
