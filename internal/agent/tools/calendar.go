package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/result"
)

// Calendar fetches the org's appointments in a time window. Defaults to the
// next seven days when no range is given.
func (t *Tools) Calendar(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("calendarTool", "CALENDAR_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			now := time.Now().UTC()
			from := now
			to := now.AddDate(0, 0, 7)

			if s, ok := args["from"].(string); ok && s != "" {
				parsed, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, err
				}
				from = parsed
			}
			if s, ok := args["to"].(string); ok && s != "" {
				parsed, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, err
				}
				to = parsed
			}
			limit := argIntOr(args, "limit", 50)

			opID := t.deps.OpLog.OperationStart(ctx, "fetchAppointments", map[string]any{
				"from": from.Format(time.RFC3339), "to": to.Format(time.RFC3339),
			})

			appts, err := t.deps.Store.ListAppointmentsInRange(ctx, orgID, from, to, limit)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "fetchAppointments", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "fetchAppointments", true, map[string]any{"count": len(appts)})
			return Output{"appointments": appts, "count": len(appts)}, nil
		}), nil
}
