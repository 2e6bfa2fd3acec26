// Package history keeps a bounded ledger of past scan summaries.
package history

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/PiotrMackowski/CloudStrike/internal/scan"
)

// MaxEntries is the number of scans retained. Older entries are evicted
// first.
const MaxEntries = 50

// Entry summarizes one scan.
type Entry struct {
	Timestamp     string `json:"timestamp"`
	ScanID        string `json:"scan_id,omitempty"`
	SecurityScore int    `json:"security_score"`
	RiskLevel     string `json:"risk_level"`
	FindingsCount int    `json:"findings_count"`
	AttacksCount  int    `json:"attacks_count"`
}

// Stats aggregates the retained entries.
type Stats struct {
	TotalScans int    `json:"total_scans"`
	LastScan   string `json:"last_scan"`
	AvgScore   int    `json:"avg_score"`
}

// Store persists the full ledger.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q (valid: %s, %s)", backend, BackendJSON, BackendSQLite)
	}
}

// Ledger records scans to a Store. Persistence errors are logged and never
// returned, so a broken store cannot fail a scan. All methods serialize on
// one lock.
type Ledger struct {
	store Store
	max   int
	now   func() time.Time
	mu    sync.Mutex
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, max: MaxEntries, now: time.Now}
}

// Record appends an entry for res and persists the ledger truncated to the
// newest MaxEntries. It returns the appended entry. When the stored ledger
// cannot be read nothing is written, so unreadable history is never replaced.
func (l *Ledger) Record(ctx context.Context, res *scan.Result) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp:     l.now().UTC().Format(time.RFC3339),
		ScanID:        res.ID,
		SecurityScore: res.Risk.SecurityScore,
		RiskLevel:     string(res.Risk.RiskLevel),
		FindingsCount: len(res.Findings),
		AttacksCount:  len(res.Attacks),
	}

	entries, err := l.store.Load(ctx)
	if err != nil {
		log.Printf("[history] ERROR loading scan history, not recording scan %s: %v", entry.ScanID, err)
		return entry
	}
	entries = append(entries, entry)
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}

	if err := l.store.Save(ctx, entries); err != nil {
		log.Printf("[history] ERROR saving scan history: %v", err)
		return entry
	}
	log.Printf("[history] recorded scan %s: score %d (%s)", entry.ScanID, entry.SecurityScore, entry.RiskLevel)
	return entry
}

// Entries returns the retained entries, oldest first.
func (l *Ledger) Entries(ctx context.Context) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Stats computes aggregates over the retained entries.
func (l *Ledger) Stats(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ComputeStats(l.load(ctx))
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}

func (l *Ledger) load(ctx context.Context) []Entry {
	entries, err := l.store.Load(ctx)
	if err != nil {
		log.Printf("[history] ERROR loading scan history: %v", err)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// ComputeStats aggregates entries. LastScan is "Never" for an empty ledger
// and "Unknown" when the newest timestamp cannot be parsed.
func ComputeStats(entries []Entry) Stats {
	if len(entries) == 0 {
		return Stats{LastScan: "Never"}
	}

	sum := 0
	for _, e := range entries {
		sum += e.SecurityScore
	}

	last := "Unknown"
	if t, err := time.Parse(time.RFC3339, entries[len(entries)-1].Timestamp); err == nil {
		last = t.Format("2006-01-02 15:04")
	}

	return Stats{
		TotalScans: len(entries),
		LastScan:   last,
		AvgScore:   sum / len(entries),
	}
}
