package models

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of one scan. Readers share it without locks;
// a rescan builds a new Snapshot instead of mutating this one.
type Snapshot struct {
	Run     ScanRun
	senders []SenderStats
	byEmail map[string]int
	byID    map[string]int
}

// NewSnapshot copies the senders and orders them by total count descending,
// then email ascending.
func NewSnapshot(run ScanRun, senders []SenderStats) *Snapshot {
	sorted := make([]SenderStats, len(senders))
	copy(sorted, senders)
	for i := range sorted {
		sorted[i].Labels = append(sorted[i].Labels[:0:0], sorted[i].Labels...)
		if sorted[i].ID == "" {
			sorted[i].ID = SenderID(sorted[i].Email)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalCount != sorted[j].TotalCount {
			return sorted[i].TotalCount > sorted[j].TotalCount
		}
		return sorted[i].Email < sorted[j].Email
	})

	s := &Snapshot{
		Run:     run,
		senders: sorted,
		byEmail: make(map[string]int, len(sorted)),
		byID:    make(map[string]int, len(sorted)),
	}
	for i, sender := range sorted {
		s.byEmail[sender.Email] = i
		s.byID[sender.ID] = i
	}
	return s
}

func EmptySnapshot() *Snapshot {
	return NewSnapshot(ScanRun{UnreadByCategory: CountMap{}}, nil)
}

func (s *Snapshot) Version() int64 {
	return s.Run.Version
}

func (s *Snapshot) ScannedAt() time.Time {
	return s.Run.ScannedAt
}

func (s *Snapshot) Len() int {
	return len(s.senders)
}

// Senders returns a copy of the ordered sender list.
func (s *Snapshot) Senders() []SenderStats {
	out := make([]SenderStats, len(s.senders))
	copy(out, s.senders)
	return out
}

// Range calls fn for each sender in order until fn returns false.
func (s *Snapshot) Range(fn func(SenderStats) bool) {
	for _, sender := range s.senders {
		if !fn(sender) {
			return
		}
	}
}

func (s *Snapshot) SenderByEmail(email string) (SenderStats, bool) {
	i, ok := s.byEmail[email]
	if !ok {
		return SenderStats{}, false
	}
	return s.senders[i], true
}

func (s *Snapshot) SenderByID(id string) (SenderStats, bool) {
	i, ok := s.byID[id]
	if !ok {
		return SenderStats{}, false
	}
	return s.senders[i], true
}
