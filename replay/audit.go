package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/session"
)

// TrainHistoryKey is the datakey of the training history namespace.
const TrainHistoryKey = "TRAINHISTORY"

// DefaultAuditLimit is the number of records an AuditLog keeps.
const DefaultAuditLimit = 50

// AuditRecord summarizes one replay.
type AuditRecord struct {
	DialogID      string          `json:"dialogId" yaml:"dialogId"`
	ReplayedAt    time.Time       `json:"replayedAt" yaml:"replayedAt"`
	Rounds        int             `json:"rounds" yaml:"rounds"`
	Activities    int             `json:"activities" yaml:"activities"`
	Discrepancies []string        `json:"discrepancies,omitempty" yaml:"discrepancies,omitempty"`
	DialogMode    core.DialogMode `json:"dialogMode" yaml:"dialogMode"`
}

// NewAuditRecord summarizes a replay of dialog.
func NewAuditRecord(dialog core.TrainDialog, h *History) AuditRecord {
	return AuditRecord{
		DialogID:      dialog.ID,
		Rounds:        len(dialog.Rounds),
		Activities:    len(h.Activities),
		Discrepancies: h.Discrepancies,
		DialogMode:    h.DialogMode,
	}
}

// AuditOptions configure an AuditLog.
type AuditOptions struct {
	// Limit caps the number of kept records; older records are dropped.
	Limit int
	Now   func() time.Time
}

// AuditLog keeps the most recent replays of a scope under
// "<hash>_TRAINHISTORY".
type AuditLog struct {
	scoped *memory.Scoped
	opts   AuditOptions
}

// NewAuditLog creates the audit log of scopeKey.
func NewAuditLog(store *memory.Store, scopeKey string, optFns ...func(o *AuditOptions)) *AuditLog {
	opts := AuditOptions{Limit: DefaultAuditLimit, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultAuditLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuditLog{scoped: store.Scoped(session.Hash(scopeKey)), opts: opts}
}

// Append stores rec, stamping ReplayedAt when it is zero.
func (a *AuditLog) Append(ctx context.Context, rec AuditRecord) error {
	records, err := a.Records(ctx)
	if err != nil {
		return err
	}
	if rec.ReplayedAt.IsZero() {
		rec.ReplayedAt = a.opts.Now()
	}
	records = append(records, rec)
	if len(records) > a.opts.Limit {
		records = records[len(records)-a.opts.Limit:]
	}

	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode training history: %w", err)
	}
	return a.scoped.Set(ctx, TrainHistoryKey, string(b))
}

// Records returns the kept records, oldest first.
func (a *AuditLog) Records(ctx context.Context) ([]AuditRecord, error) {
	data, ok, err := a.scoped.Get(ctx, TrainHistoryKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []AuditRecord{}, nil
	}
	var records []AuditRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("failed to decode training history: %w", err)
	}
	return records, nil
}
