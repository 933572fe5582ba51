package buildinfo

import "time"

// Stamped with -ldflags "-X github.com/xelth-com/eckrentgo/internal/buildinfo.CommitHash=..."
var (
	BuildTime  string
	CommitTime string
	CommitHash string
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

const unknown = "dev"

// Info is the build and process identity reported by /health
type Info struct {
	Status     string `json:"status"`
	BuildTime  string `json:"buildTime"`
	CommitTime string `json:"commitTime"`
	CommitHash string `json:"commitHash"`
	StartTime  string `json:"startTime"`
}

// Current returns the stamped values, "dev" for anything not stamped
func Current() Info {
	return Info{
		Status:     "ok",
		BuildTime:  orUnknown(BuildTime),
		CommitTime: orUnknown(CommitTime),
		CommitHash: orUnknown(CommitHash),
		StartTime:  StartTime,
	}
}

// Version is the short form used in log lines
func Version() string {
	return orUnknown(CommitHash)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
