package stores

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/types"
)

// PositionStore holds paper positions keyed by id. Positions are few during
// a run so the store is unbounded; terminal positions stay queryable until
// the process exits. The durable archive holds positions as they were
// opened; their close-out is not written there.
//
// Write discipline (shared with the price monitor): the copy-trade engine
// mutates only on creation; the monitor mutates marks, watermark and the
// close-out fields.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]*types.PaperPosition
	order     []string // insertion order of ids
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*types.PaperPosition)}
}

// Add inserts a new position. Re-adding an existing id is ignored.
func (s *PositionStore) Add(p types.PaperPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return
	}
	copied := p
	s.positions[p.ID] = &copied
	s.order = append(s.order, p.ID)
}

// Get returns a snapshot of one position.
func (s *PositionStore) Get(id string) (types.PaperPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return types.PaperPosition{}, false
	}
	return *p, true
}

// Open returns snapshots of all open positions, oldest first.
func (s *PositionStore) Open() []types.PaperPosition {
	return s.filter(func(p *types.PaperPosition) bool { return p.Status == types.PositionOpen })
}

// All returns snapshots of every position, oldest first.
func (s *PositionStore) All() []types.PaperPosition {
	return s.filter(func(*types.PaperPosition) bool { return true })
}

func (s *PositionStore) filter(keep func(*types.PaperPosition) bool) []types.PaperPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PaperPosition, 0, len(s.order))
	for _, id := range s.order {
		if p := s.positions[id]; keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

// AttachRule appends an exit rule to a position. Returns false when the id
// is unknown or the position is no longer open.
func (s *PositionStore) AttachRule(id string, rule types.ExitRule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != types.PositionOpen {
		return false
	}
	if rule.AttachedAt.IsZero() {
		rule.AttachedAt = time.Now().UTC()
	}
	p.ExitRules = append(p.ExitRules, rule)
	return true
}

// UpdateMark sets the current price, refreshes the high watermark on a
// strictly higher mark, and recomputes unrealized PnL.
func (s *PositionStore) UpdateMark(id string, price decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != types.PositionOpen {
		return false
	}
	p.CurrentPrice = price
	if price.GreaterThan(p.HighWatermark) {
		p.HighWatermark = price
	}
	p.UnrealizedPnL = price.Sub(p.EntryPrice).Mul(p.Size)
	return true
}

// Close transitions a position to a terminal status with the given exit
// price and reason, computing realized PnL. Closing a terminal position is
// a no-op returning false.
func (s *PositionStore) Close(id string, status types.PositionStatus, exitPrice decimal.Decimal, reason string, at time.Time) (types.PaperPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != types.PositionOpen {
		return types.PaperPosition{}, false
	}
	p.Status = status
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ClosedAt = at
	p.RealizedPnL = exitPrice.Sub(p.EntryPrice).Mul(p.Size)
	p.UnrealizedPnL = decimal.Zero
	return *p, true
}

// Stats summarises realized PnL across terminal positions.
func (s *PositionStore) Stats() (open, closed int, realized decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	realized = decimal.Zero
	for _, p := range s.positions {
		if p.Status == types.PositionOpen {
			open++
			continue
		}
		closed++
		realized = realized.Add(p.RealizedPnL)
	}
	return open, closed, realized
}

// OpenIDs returns the ids of open positions sorted by insertion order.
func (s *PositionStore) OpenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := make(map[string]int, len(s.order))
	for i, id := range s.order {
		index[id] = i
	}
	out := make([]string, 0)
	for id, p := range s.positions {
		if p.Status == types.PositionOpen {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return index[out[i]] < index[out[j]] })
	return out
}
