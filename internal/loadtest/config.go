package loadtest

import "time"

// Config holds configuration for a load run against a placement server.
type Config struct {
	BaseURL       string        // Base URL of the service
	Candidates    int           // Number of candidates to generate
	Opportunities int           // Number of opportunities to generate
	Runs          int           // Number of async runs to submit
	Workers       int           // Number of concurrent submitters
	Strategy      string        // Strategy requested by every run
	Seed          uint64        // Generator seed; equal seeds give equal datasets
	Timeout       time.Duration // HTTP request timeout
	PollInterval  time.Duration // Delay between run status polls
	OutputFile    string        // Where the generated dataset is written, empty to skip
	Verbose       bool          // Log every run as it settles
}

// Stats holds test statistics.
type Stats struct {
	RunsSubmitted int
	RunsAccepted  int
	RunsDuplicate int
	RunsRejected  int
	RunsSettled   map[string]int
	Violations    int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// Runner configuration constants.
const (
	defaultPollInterval = 200 * time.Millisecond
	maxPolls            = 600
	// every duplicateEvery-th submission reuses the previous idempotency key
	duplicateEvery      = 5
	workerChannelFactor = 2
)
