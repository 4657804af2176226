package cluster

import "time"

// Recorder receives observability events from the ring engine without the
// engine importing the monitoring package directly — the same decoupling
// the teacher uses between storage.Storage and its callers.
type Recorder interface {
	ObserveMigration(migration string, keys int, dur time.Duration)
	ObserveTransportError(op string)
	ObserveMembership(nodeCount int)
}

// NoopRecorder discards every observation. It is the Ring's default so
// callers that don't care about metrics never need to provide one.
type NoopRecorder struct{}

func (NoopRecorder) ObserveMigration(string, int, time.Duration) {}
func (NoopRecorder) ObserveTransportError(string)                {}
func (NoopRecorder) ObserveMembership(int)                       {}
