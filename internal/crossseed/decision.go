// Package crossseed orchestrates cross-seed scans: enumerating completed
// torrents, searching indexers, matching candidates against local data and
// injecting matches back into the client.
package crossseed

// DecisionKind classifies the outcome of evaluating one candidate against
// one searchee. Persisted as the decision column, so values are stable.
type DecisionKind string

const (
	DecisionExact          DecisionKind = "exact"
	DecisionSizeOnly       DecisionKind = "size_only"
	DecisionSizeMismatch   DecisionKind = "size_mismatch"
	DecisionMissingLink    DecisionKind = "missing_link"
	DecisionDownloadFailed DecisionKind = "download_failed"
	DecisionAlreadyPresent DecisionKind = "already_present"
	DecisionBlocked        DecisionKind = "blocked"
)

// Positive reports whether the decision represents an injectable match.
func (d DecisionKind) Positive() bool {
	return d == DecisionExact || d == DecisionSizeOnly
}
