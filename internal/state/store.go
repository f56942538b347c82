// Package state holds the in-memory simulation tables shared by the
// synthesis, resolver and HTTP layers.
package state

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// Store owns the alerts, facility/resource and social-update tables for the
// lifetime of the process. Writers swap whole tables under the write lock;
// readers always receive copies, so a reader never observes a torn table.
type Store struct {
	clock clockwork.Clock

	mu         sync.RWMutex
	alerts     []domain.Alert
	facilities []domain.Facility
	resources  []domain.ResourceStatus
	social     []domain.SocialUpdate
	versions   map[domain.Dataset]uint64
}

// Snapshot is a consistent copy of every table.
type Snapshot struct {
	Alerts     []domain.Alert            `json:"alerts"`
	Facilities []domain.Facility         `json:"facilities"`
	Resources  []domain.ResourceStatus   `json:"resources"`
	Social     []domain.SocialUpdate     `json:"social"`
	Versions   map[domain.Dataset]uint64 `json:"versions"`
}

// New creates a Store seeded with the placeholder rows. A nil clock uses real time.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{clock: clock, versions: make(map[domain.Dataset]uint64, len(domain.Datasets))}
	s.seed()
	return s
}

// Clock returns the store's time source.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// Reset restores the placeholder rows in every table. Calling it repeatedly
// leaves the same contents; only the versions advance.
func (s *Store) Reset() []domain.TableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed()
	return []domain.TableSnapshot{
		s.snapshotLocked(domain.DatasetAlerts, "reset"),
		s.snapshotLocked(domain.DatasetResources, "reset"),
		s.snapshotLocked(domain.DatasetSocial, "reset"),
	}
}

// seed must be called with mu held (or before the Store is shared).
func (s *Store) seed() {
	now := s.clock.Now().UTC().Truncate(time.Minute)
	s.alerts = []domain.Alert{PlaceholderAlert(now)}
	f, r := PlaceholderFacility(now)
	s.facilities = []domain.Facility{f}
	s.resources = []domain.ResourceStatus{r}
	s.social = []domain.SocialUpdate{PlaceholderUpdate(now)}
	for _, d := range domain.Datasets {
		s.versions[d]++
	}
}

// ReplaceAlerts swaps the alerts table. An empty slice restores the placeholder.
func (s *Store) ReplaceAlerts(alerts []domain.Alert) domain.TableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(alerts) == 0 {
		alerts = []domain.Alert{PlaceholderAlert(s.now())}
	}
	s.alerts = slices.Clone(alerts)
	s.versions[domain.DatasetAlerts]++
	return s.snapshotLocked(domain.DatasetAlerts, "synthesis")
}

// ReplaceResources swaps the facility and resource tables together so that
// every ResourceStatus references a Facility in the same generation.
// Occupancy is clipped to capacity on the way in.
func (s *Store) ReplaceResources(facilities []domain.Facility, resources []domain.ResourceStatus) domain.TableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(facilities) == 0 {
		f, r := PlaceholderFacility(s.now())
		facilities, resources = []domain.Facility{f}, []domain.ResourceStatus{r}
	}

	fs := slices.Clone(facilities)
	for i := range fs {
		fs[i].ClampOccupancy()
	}
	names := make(map[string]bool, len(fs))
	for _, f := range fs {
		names[f.Name] = true
	}
	rs := make([]domain.ResourceStatus, 0, len(resources))
	for _, r := range resources {
		if names[r.Facility] {
			rs = append(rs, r)
		}
	}

	s.facilities, s.resources = fs, rs
	s.versions[domain.DatasetResources]++
	return s.snapshotLocked(domain.DatasetResources, "synthesis")
}

// ReplaceSocial swaps the social-updates table. An empty slice restores the placeholder.
func (s *Store) ReplaceSocial(updates []domain.SocialUpdate) domain.TableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(updates) == 0 {
		updates = []domain.SocialUpdate{PlaceholderUpdate(s.now())}
	}
	s.social = slices.Clone(updates)
	s.versions[domain.DatasetSocial]++
	return s.snapshotLocked(domain.DatasetSocial, "synthesis")
}

// DecayFunc mutates one facility and its resource row in place. r is nil when
// the facility has no resource row.
type DecayFunc func(now time.Time, f *domain.Facility, r *domain.ResourceStatus)

// Decay applies fn to every facility under the write lock, then clips
// occupancy to [0, capacity] regardless of what fn did.
func (s *Store) Decay(fn DecayFunc) domain.TableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	byName := make(map[string]int, len(s.resources))
	for i, r := range s.resources {
		byName[r.Facility] = i
	}

	// Copy-on-write keeps slices handed to earlier readers unchanged.
	fs := slices.Clone(s.facilities)
	rs := slices.Clone(s.resources)
	for i := range fs {
		var r *domain.ResourceStatus
		if j, ok := byName[fs[i].Name]; ok {
			r = &rs[j]
		}
		fn(now, &fs[i], r)
		fs[i].ClampOccupancy()
	}
	s.facilities, s.resources = fs, rs
	s.versions[domain.DatasetResources]++
	return s.snapshotLocked(domain.DatasetResources, "decay")
}

// Alerts returns a copy of the alerts table.
func (s *Store) Alerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.alerts)
}

// Facilities returns a copy of the facility table.
func (s *Store) Facilities() []domain.Facility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.facilities)
}

// Resources returns a copy of the resource table.
func (s *Store) Resources() []domain.ResourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.resources)
}

// Social returns a copy of the social-updates table.
func (s *Store) Social() []domain.SocialUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.social)
}

// Version returns the number of writes applied to a dataset's table.
func (s *Store) Version(d domain.Dataset) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[d]
}

// Snapshot returns a consistent copy of all tables.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := make(map[domain.Dataset]uint64, len(s.versions))
	for k, v := range s.versions {
		versions[k] = v
	}
	return Snapshot{
		Alerts:     slices.Clone(s.alerts),
		Facilities: slices.Clone(s.facilities),
		Resources:  slices.Clone(s.resources),
		Social:     slices.Clone(s.social),
		Versions:   versions,
	}
}

func (s *Store) snapshotLocked(d domain.Dataset, reason string) domain.TableSnapshot {
	snap := domain.TableSnapshot{
		Dataset: d,
		Version: s.versions[d],
		Reason:  reason,
		TakenAt: s.clock.Now().UTC(),
	}
	switch d {
	case domain.DatasetAlerts:
		snap.Alerts = slices.Clone(s.alerts)
	case domain.DatasetResources:
		snap.Facilities = slices.Clone(s.facilities)
		snap.Resources = slices.Clone(s.resources)
	case domain.DatasetSocial:
		snap.Social = slices.Clone(s.social)
	}
	return snap
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Minute)
}
