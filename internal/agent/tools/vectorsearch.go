package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/result"
	"github.com/gearbox-hq/gearbox/internal/search"
)

// VectorSearch embeds a free-text query and finds similar past service jobs
// in the org's history, hydrated from Postgres and re-scored by recency.
func (t *Tools) VectorSearch(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("vectorSearchTool", "VECTOR_SEARCH_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			if t.deps.Searcher == nil || t.deps.Embedder == nil {
				return nil, fmt.Errorf("vector search is not configured")
			}

			query, err := argString(args, "query")
			if err != nil {
				return nil, err
			}
			limit := argIntOr(args, "limit", 5)

			opID := t.deps.OpLog.OperationStart(ctx, "searchServiceHistory", map[string]any{"query": query})

			vec, err := t.deps.Embedder.Embed(ctx, query)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "searchServiceHistory", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			var filters search.Filters
			if vehicleID, err := argUUID(args, "vehicleId"); err == nil {
				filters.VehicleID = &vehicleID
			}
			if st := argStringOr(args, "serviceType", ""); st != "" {
				filters.ServiceType = &st
			}

			hits, err := t.deps.Searcher.Search(ctx, orgID, vec.Slice(), filters, limit)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "searchServiceHistory", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			ids := make([]uuid.UUID, len(hits))
			for i, h := range hits {
				ids[i] = h.RecordID
			}
			records, err := t.deps.Store.GetServiceRecords(ctx, orgID, ids)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "searchServiceHistory", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			scored := search.ReScore(hits, records, limit)
			t.deps.OpLog.OperationEnd(ctx, opID, "searchServiceHistory", true, map[string]any{"hits": len(scored)})
			return Output{"results": scored, "count": len(scored)}, nil
		}), nil
}
