package types

import "time"

// BackendState is one consistent, possibly stale, view of the backend.
type BackendState struct {
	Mirrors   map[string]struct{}
	Repos     map[string]struct{}
	Snapshots map[string]struct{}
	Publishes map[string]struct{}
	GPGKeys   map[string]struct{}
	// SnapshotSources maps a snapshot to its immediate source snapshots.
	SnapshotSources map[string]map[string]struct{}
	// PublishSnapshots maps "<endpoint> <distribution>" to served snapshots.
	PublishSnapshots map[string]map[string]struct{}
	// SnapshotCreated holds the creation time reported by the backend, when
	// it could be parsed.
	SnapshotCreated map[string]time.Time
}

func NewBackendState() BackendState {
	return BackendState{
		Mirrors:          map[string]struct{}{},
		Repos:            map[string]struct{}{},
		Snapshots:        map[string]struct{}{},
		Publishes:        map[string]struct{}{},
		GPGKeys:          map[string]struct{}{},
		SnapshotSources:  map[string]map[string]struct{}{},
		PublishSnapshots: map[string]map[string]struct{}{},
		SnapshotCreated:  map[string]time.Time{},
	}
}
