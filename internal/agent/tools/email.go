package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/result"
)

// Email sends a plain-text message to a customer or staff member.
func (t *Tools) Email(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("emailTool", "EMAIL_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			to, err := argString(args, "to")
			if err != nil {
				return nil, err
			}
			subject, err := argString(args, "subject")
			if err != nil {
				return nil, err
			}
			body, err := argString(args, "body")
			if err != nil {
				return nil, err
			}

			opID := t.deps.OpLog.OperationStart(ctx, "sendEmail", map[string]any{"to": to, "subject": subject})
			if err := t.deps.Mailer.Send(to, subject, body); err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "sendEmail", false, map[string]any{"error": err.Error()})
				return nil, err
			}
			t.deps.OpLog.OperationEnd(ctx, opID, "sendEmail", true, nil)
			return Output{"delivered": true, "to": to}, nil
		}), nil
}
