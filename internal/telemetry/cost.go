// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MaxTopQueries bounds the replies kept per session.
const MaxTopQueries = 10

// =============================================================================
// COST TRACKER
// =============================================================================

// sessionIDCounter keeps ids unique when sessions start in the same second.
var sessionIDCounter uint64

// CostTracker records token usage for the current run and reads past runs
// from storage. It is safe for concurrent use.
type CostTracker struct {
	mu        sync.RWMutex
	sessions  map[string]*SessionCost
	currentID string
	storage   *CostStorage
}

// SessionCost is the usage of one run of the application.
type SessionCost struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Tokens    TokenCount            `json:"tokens"`
	ByModel   map[string]TokenCount `json:"by_model"`
	TotalCost float64               `json:"total_cost"` // dollars
	Queries   int                   `json:"queries"`

	// most expensive replies, highest first
	TopQueries []QueryCost `json:"top_queries"`
}

// TokenCount tracks input/output tokens.
type TokenCount struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// QueryCost is the cost of one reply.
type QueryCost struct {
	Timestamp    time.Time     `json:"timestamp"`
	ChatID       string        `json:"chat_id"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Duration     time.Duration `json:"duration"`
}

// CostTrends aggregates sessions over a window of days.
type CostTrends struct {
	Days           int                `json:"days"`
	TotalCost      float64            `json:"total_cost"`
	DailyBreakdown []DailyCost        `json:"daily_breakdown"`
	ModelBreakdown map[string]float64 `json:"model_breakdown"`
}

// DailyCost is the total of one calendar day.
type DailyCost struct {
	Date       time.Time `json:"date"`
	Cost       float64   `json:"cost"`
	QueryCount int       `json:"query_count"`
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// NewCostTracker creates a tracker persisting sessions under dir.
func NewCostTracker(dir string) (*CostTracker, error) {
	storage, err := NewCostStorage(dir)
	if err != nil {
		return nil, err
	}

	ct := &CostTracker{
		sessions: make(map[string]*SessionCost),
		storage:  storage,
	}
	ct.startSession()
	return ct, nil
}

func (ct *CostTracker) startSession() {
	ct.currentID = generateSessionID()
	ct.sessions[ct.currentID] = &SessionCost{
		ID:         ct.currentID,
		StartTime:  time.Now(),
		ByModel:    make(map[string]TokenCount),
		TopQueries: make([]QueryCost, 0),
	}
}

// =============================================================================
// RECORDING
// =============================================================================

// Record adds the usage of one reply to the current session. Nil counts
// are treated as zero.
func (ct *CostTracker) Record(chatID, modelName string, input, output *int, duration time.Duration) QueryCost {
	q := QueryCost{
		Timestamp: time.Now(),
		ChatID:    chatID,
		Model:     modelName,
		Cost:      QueryPrice(modelName, input, output),
		Duration:  duration,
	}
	if input != nil {
		q.InputTokens = *input
	}
	if output != nil {
		q.OutputTokens = *output
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	session := ct.sessions[ct.currentID]
	session.Tokens.Input += q.InputTokens
	session.Tokens.Output += q.OutputTokens
	tc := session.ByModel[modelName]
	tc.Input += q.InputTokens
	tc.Output += q.OutputTokens
	session.ByModel[modelName] = tc
	session.TotalCost += q.Cost
	session.Queries++

	session.TopQueries = append(session.TopQueries, q)
	sort.SliceStable(session.TopQueries, func(i, j int) bool {
		return session.TopQueries[i].Cost > session.TopQueries[j].Cost
	})
	if len(session.TopQueries) > MaxTopQueries {
		session.TopQueries = session.TopQueries[:MaxTopQueries]
	}
	return q
}

// =============================================================================
// QUERIES
// =============================================================================

// GetCurrentSession returns a copy of the current session.
func (ct *CostTracker) GetCurrentSession() *SessionCost {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copySession(ct.sessions[ct.currentID])
}

// GetHistory returns stored sessions started within [from, to], oldest
// first. The current session is included when it falls in the range.
func (ct *CostTracker) GetHistory(from, to time.Time) ([]*SessionCost, error) {
	ids, err := ct.storage.List(from, to)
	if err != nil {
		return nil, err
	}

	ct.mu.RLock()
	currentID := ct.currentID
	current := copySession(ct.sessions[currentID])
	ct.mu.RUnlock()

	sessions := make([]*SessionCost, 0, len(ids)+1)
	for _, id := range ids {
		if id == currentID {
			continue
		}
		s, err := ct.storage.Load(id)
		if err != nil {
			// skip unreadable files rather than failing the whole report
			continue
		}
		sessions = append(sessions, s)
	}
	if !current.StartTime.Before(from) && !current.StartTime.After(to) {
		sessions = append(sessions, current)
	}
	return sessions, nil
}

// GetTrends aggregates the last days of sessions by day and by model.
func (ct *CostTracker) GetTrends(days int) (*CostTrends, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	sessions, err := ct.GetHistory(from, to)
	if err != nil {
		return nil, err
	}

	trends := &CostTrends{
		Days:           days,
		DailyBreakdown: make([]DailyCost, 0),
		ModelBreakdown: make(map[string]float64),
	}

	daily := make(map[string]*DailyCost)
	for _, s := range sessions {
		key := s.StartTime.Format("2006-01-02")
		d, ok := daily[key]
		if !ok {
			y, m, dd := s.StartTime.Date()
			d = &DailyCost{Date: time.Date(y, m, dd, 0, 0, 0, 0, s.StartTime.Location())}
			daily[key] = d
		}
		d.Cost += s.TotalCost
		d.QueryCount += s.Queries
		trends.TotalCost += s.TotalCost

		for name, tc := range s.ByModel {
			in, out := tc.Input, tc.Output
			trends.ModelBreakdown[name] += QueryPrice(name, &in, &out)
		}
	}

	for _, d := range daily {
		trends.DailyBreakdown = append(trends.DailyBreakdown, *d)
	}
	sort.Slice(trends.DailyBreakdown, func(i, j int) bool {
		return trends.DailyBreakdown[i].Date.Before(trends.DailyBreakdown[j].Date)
	})
	return trends, nil
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// EndSession saves the current session when it recorded anything and
// starts a new one.
func (ct *CostTracker) EndSession() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	session := ct.sessions[ct.currentID]
	if session != nil && session.Queries > 0 {
		session.EndTime = time.Now()
		if err := ct.storage.Save(session); err != nil {
			return err
		}
	}
	delete(ct.sessions, ct.currentID)
	ct.startSession()
	return nil
}

// SaveCurrentSession writes the current session without ending it.
func (ct *CostTracker) SaveCurrentSession() error {
	session := ct.GetCurrentSession()
	if session == nil || session.Queries == 0 {
		return nil
	}
	return ct.storage.Save(session)
}

// Storage returns the backing store.
func (ct *CostTracker) Storage() *CostStorage {
	return ct.storage
}

// =============================================================================
// HELPERS
// =============================================================================

func copySession(src *SessionCost) *SessionCost {
	if src == nil {
		return nil
	}
	dst := *src
	dst.ByModel = make(map[string]TokenCount, len(src.ByModel))
	for k, v := range src.ByModel {
		dst.ByModel[k] = v
	}
	dst.TopQueries = make([]QueryCost, len(src.TopQueries))
	copy(dst.TopQueries, src.TopQueries)
	return &dst
}

// generateSessionID returns "20060102-150405-<n>".
func generateSessionID() string {
	counter := atomic.AddUint64(&sessionIDCounter, 1)
	return time.Now().Format(sessionTimeLayout) + "-" + fmt.Sprintf("%d", counter)
}
