package tools

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pricingCompleter() *mockCompleter {
	return &mockCompleter{responses: map[string]string{
		"price breakdown": `{"labor": 600, "parts": 300, "taxes": 100, "total": 1000}`,
		"adjustments":     `{"adjustments": [{"label": "loyalty discount", "value": -50, "applied": true, "reason": "returning customer"}]}`,
	}}
}

func TestPricingBreakdownStep(t *testing.T) {
	orgID := uuid.New()
	tl := newTestTools(pricingCompleter(), &mockStore{}, &mockMailer{})

	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{
		"step": "breakdown", "serviceType": "brake_service",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	b := res.Data["breakdown"].(Breakdown)
	assert.Equal(t, 1000.0, b.Total)
	assert.Equal(t, 600.0, b.Labor)
}

func TestPricingAdjustmentStep(t *testing.T) {
	orgID := uuid.New()
	tl := newTestTools(pricingCompleter(), &mockStore{}, &mockMailer{})

	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{
		"step": "adjustment", "serviceType": "brake_service",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	adjustments := res.Data["adjustments"].([]Adjustment)
	require.Len(t, adjustments, 1)
	assert.True(t, adjustments[0].Applied)
}

// The final step re-derives the breakdown and composes the total from three
// sources: breakdown total, applied adjustments, and the custom adjustment.
func TestPricingFinalTotal(t *testing.T) {
	orgID := uuid.New()
	tl := newTestTools(pricingCompleter(), &mockStore{}, &mockMailer{})

	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{
		"step":        "final",
		"serviceType": "brake_service",
		"adjustments": []map[string]any{
			{"label": "demand surcharge", "value": 75.0, "applied": true},
			{"label": "bundle discount", "value": -200.0, "applied": false},
		},
		"customAdjustment": 25.0,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// 1000 (breakdown) + 75 (applied) + 25 (custom); the unapplied
	// adjustment contributes nothing.
	assert.Equal(t, 1100.0, res.Data["total"])
}

func TestPricingFinalIgnoresCachedBreakdown(t *testing.T) {
	orgID := uuid.New()
	completer := pricingCompleter()
	tl := newTestTools(completer, &mockStore{}, &mockMailer{})

	// A stale breakdown passed in args must not be trusted.
	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{
		"step":        "final",
		"serviceType": "brake_service",
		"breakdown":   map[string]any{"total": 999999.0},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1000.0, res.Data["total"])
	assert.Equal(t, 1, completer.calls) // re-derived exactly once
}

func TestPricingInvalidStep(t *testing.T) {
	orgID := uuid.New()
	completer := pricingCompleter()
	tl := newTestTools(completer, &mockStore{}, &mockMailer{})

	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{"step": "negotiate"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Message, `invalid step "negotiate"`)
	assert.Zero(t, completer.calls)
}

func TestPricingMissingServiceType(t *testing.T) {
	orgID := uuid.New()
	tl := newTestTools(pricingCompleter(), &mockStore{}, &mockMailer{})

	res, err := tl.Pricing(authedCtx(orgID), orgID, map[string]any{"step": "breakdown"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Message, "serviceType")
}
