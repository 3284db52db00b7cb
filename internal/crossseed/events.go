package crossseed

// WebSocket event types emitted during scans.
const (
	EventScanStarted   = "crossseed:scan_started"
	EventScanProgress  = "crossseed:scan_progress"
	EventScanCompleted = "crossseed:scan_completed"
	EventScanFailed    = "crossseed:scan_failed"
	EventInjected      = "crossseed:injected"
)

// Broadcaster pushes events to connected dashboard clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// ScanStartedPayload announces a scan beginning.
type ScanStartedPayload struct {
	InstanceID int64 `json:"instanceId"`
	Forced     bool  `json:"forced"`
}

// ScanProgressPayload reports per-torrent progress within a scan.
type ScanProgressPayload struct {
	InstanceID int64  `json:"instanceId"`
	Torrent    string `json:"torrent"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
}

// ScanCompletedPayload summarizes a finished scan.
type ScanCompletedPayload struct {
	InstanceID int64 `json:"instanceId"`
	Scanned    int   `json:"scanned"`
	Injected   int   `json:"injected"`
	Simulated  int   `json:"simulated"`
	Rejected   int   `json:"rejected"`
	Errors     int   `json:"errors"`
	ElapsedMs  int64 `json:"elapsedMs"`
}

// ScanFailedPayload reports a scan that could not run at all.
type ScanFailedPayload struct {
	InstanceID int64  `json:"instanceId"`
	Error      string `json:"error"`
}

// InjectedPayload announces one successful injection.
type InjectedPayload struct {
	InstanceID int64  `json:"instanceId"`
	Searchee   string `json:"searchee"`
	Candidate  string `json:"candidate"`
	InfoHash   string `json:"infoHash"`
	Decision   string `json:"decision"`
	DryRun     bool   `json:"dryRun"`
}
