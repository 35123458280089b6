package motion

import "github.com/nvr-ai/go-motion/common"

// persistenceEntry is the consecutive-appearance counter of one spatial area.
type persistenceEntry struct {
	Box      common.Region
	Hits     int
	LastSeen uint64
}

// PersistenceFilter confirms regions only after they recur on consecutive frames.
//
// Current regions and tracked entries form one proximity graph (the same
// common.Near predicate the merger uses). A component holding current regions
// becomes a single entry whose counter is one more than the best counter it
// absorbed, capped at the requirement. Entries left unmatched have their
// counter reset and are evicted once they have gone unseen for more than
// maxMisses frames.
type PersistenceFilter struct {
	required  int
	margin    int
	maxMisses int
	entries   []persistenceEntry
}

// NewPersistenceFilter creates a filter.
//
// Arguments:
//   - required: Consecutive matches needed for confirmation (values < 1 behave as 1).
//   - margin: Proximity margin used to match regions to tracked entries.
//   - maxMisses: Frames an unmatched entry is kept before eviction.
//
// Returns:
//   - *PersistenceFilter: An empty filter.
func NewPersistenceFilter(required, margin, maxMisses int) *PersistenceFilter {
	p := &PersistenceFilter{}
	p.configure(required, margin, maxMisses)
	return p
}

func (p *PersistenceFilter) configure(required, margin, maxMisses int) {
	p.required = max(required, 1)
	p.margin = max(margin, 0)
	p.maxMisses = max(maxMisses, 0)
	for i := range p.entries {
		p.entries[i].Hits = min(p.entries[i].Hits, p.required)
	}
}

// Confirm updates the tracked counters with this frame's regions and returns
// the regions whose counter has reached the requirement.
//
// Arguments:
//   - regions: Merged regions of the current frame.
//   - frameIndex: Monotonic index of the current frame.
//
// Returns:
//   - []common.Region: Confirmed regions, sorted.
//
// @example
// p := NewPersistenceFilter(2, 20, 5)
// p.Confirm(regions, 1) // nothing yet
// p.Confirm(regions, 2) // regions confirmed
func (p *PersistenceFilter) Confirm(regions []common.Region, frameIndex uint64) []common.Region {
	n := len(regions)
	boxes := make([]common.Region, 0, n+len(p.entries))
	boxes = append(boxes, regions...)
	for _, e := range p.entries {
		boxes = append(boxes, e.Box)
	}

	next := make([]persistenceEntry, 0, len(boxes))
	var confirmed []common.Region

	for _, group := range common.Components(boxes, p.margin) {
		var current []common.Region
		var previous []persistenceEntry
		for _, idx := range group {
			if idx < n {
				current = append(current, regions[idx])
			} else {
				previous = append(previous, p.entries[idx-n])
			}
		}

		if len(current) == 0 {
			for _, e := range previous {
				if frameIndex >= e.LastSeen && frameIndex-e.LastSeen > uint64(p.maxMisses) {
					continue
				}
				e.Hits = 0
				next = append(next, e)
			}
			continue
		}

		best := 0
		for _, e := range previous {
			best = max(best, e.Hits)
		}
		box, _ := common.BoundingRegion(current)
		entry := persistenceEntry{Box: box, Hits: min(best+1, p.required), LastSeen: frameIndex}
		next = append(next, entry)

		if entry.Hits >= p.required {
			confirmed = append(confirmed, current...)
		}
	}

	p.entries = next
	common.SortRegions(confirmed)
	return confirmed
}

// Len is the number of tracked entries.
func (p *PersistenceFilter) Len() int {
	return len(p.entries)
}

// Reset drops every tracked entry.
func (p *PersistenceFilter) Reset() {
	p.entries = nil
}
