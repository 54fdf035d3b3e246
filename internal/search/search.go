// Package search provides vector search over service history using an
// external index (Qdrant), with results hydrated from Postgres.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/model"
)

// Result holds a service-record ID and its raw similarity score from the
// index. The caller hydrates full records from Postgres (source of truth).
type Result struct {
	RecordID uuid.UUID
	Score    float32
}

// Filters narrows a service-history search.
type Filters struct {
	VehicleID   *uuid.UUID
	ServiceType *string
	From        *time.Time
	To          *time.Time
}

// Searcher is the interface for vector search indexes.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns service-record IDs matching the query vector, always
	// filtered by org plus optional filters.
	Search(ctx context.Context, orgID uuid.UUID, embedding []float32, filters Filters, limit int) ([]Result, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// ScoredRecord pairs a hydrated service record with its adjusted relevance.
type ScoredRecord struct {
	Record model.ServiceRecord `json:"record"`
	Score  float32             `json:"score"`
}

// ReScore applies recency decay to raw similarity scores, sorts descending,
// and truncates to limit. Recent jobs matter more when quoting new work:
// relevance = similarity / (1 + age_days/180).
func ReScore(results []Result, records map[uuid.UUID]model.ServiceRecord, limit int) []ScoredRecord {
	now := time.Now()
	scored := make([]ScoredRecord, 0, len(results))

	for _, r := range results {
		rec, ok := records[r.RecordID]
		if !ok {
			// Record deleted between index search and Postgres hydration.
			continue
		}

		ageDays := math.Max(0, now.Sub(rec.PerformedAt).Hours()/24.0)
		relevance := float64(r.Score) / (1.0 + ageDays/180.0)

		scored = append(scored, ScoredRecord{
			Record: rec,
			Score:  float32(math.Min(relevance, 1.0)),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
