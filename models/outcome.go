package models

// OutcomeKind classifies the terminal result of one download attempt for a station.
type OutcomeKind int

const (
	OutcomeDownloaded OutcomeKind = iota + 1
	OutcomeNotFound
	OutcomeNoData
	OutcomeTransient
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNoData:
		return "no_data"
	case OutcomeTransient:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Retryable reports whether a station with this outcome may be attempted again.
// Not-found and no-data are confirmed classifications and are final.
func (k OutcomeKind) Retryable() bool {
	return k == OutcomeTransient
}

// DownloadOutcome is the result of processing one station once.
type DownloadOutcome struct {
	Station string
	Kind    OutcomeKind
	// Path is the archive in the destination folder, set for OutcomeDownloaded.
	Path   string
	Reason string
	// Unchanged is set when an archive of identical size was already in place.
	Unchanged bool
}

func Downloaded(station, path string, unchanged bool) DownloadOutcome {
	return DownloadOutcome{Station: station, Kind: OutcomeDownloaded, Path: path, Unchanged: unchanged}
}

func NotFound(station, reason string) DownloadOutcome {
	return DownloadOutcome{Station: station, Kind: OutcomeNotFound, Reason: reason}
}

func NoData(station, reason string) DownloadOutcome {
	return DownloadOutcome{Station: station, Kind: OutcomeNoData, Reason: reason}
}

func Transient(station, reason string) DownloadOutcome {
	return DownloadOutcome{Station: station, Kind: OutcomeTransient, Reason: reason}
}

// BatchResult partitions the stations of one orchestrated run.
type BatchResult struct {
	RunID      string
	Downloaded []string
	Failed     []string
	NotFound   []string
	NoData     []string
	// Skipped holds stations never attempted because the run was stopped.
	Skipped     []string
	Interrupted bool
	Passes      int
	Destination string
}

// Success reports whether every attempted station ended in a confirmed state.
func (r *BatchResult) Success() bool {
	return len(r.Failed) == 0
}

// Total is the number of stations the run was asked to process.
func (r *BatchResult) Total() int {
	return len(r.Downloaded) + len(r.Failed) + len(r.NotFound) + len(r.NoData) + len(r.Skipped)
}
