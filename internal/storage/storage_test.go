package storage_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/storage"
	"github.com/gearbox-hq/gearbox/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	tc := testutil.MustStartPostgres()
	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func createOrg(t *testing.T, name string) model.Organization {
	t.Helper()
	org, err := testDB.CreateOrganization(context.Background(), model.Organization{
		Name: name,
		Slug: fmt.Sprintf("%s-%s", name, uuid.New().String()[:8]),
		Plan: "starter",
	})
	require.NoError(t, err)
	return org
}

func createVehicle(t *testing.T, orgID uuid.UUID) model.Vehicle {
	t.Helper()
	v, err := testDB.CreateVehicle(context.Background(), model.Vehicle{
		OrgID: orgID,
		VIN:   uuid.New().String(),
		Make:  "Toyota",
		Model: "Corolla",
		Year:  2019,
	})
	require.NoError(t, err)
	return v
}

func TestCreateAndGetVehicle(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-a")

	v := createVehicle(t, org.ID)
	got, err := testDB.GetVehicle(ctx, org.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.VIN, got.VIN)
	assert.Equal(t, "Toyota", got.Make)
}

func TestVehicleTenantIsolation(t *testing.T) {
	ctx := context.Background()
	orgA := createOrg(t, "workshop-iso-a")
	orgB := createOrg(t, "workshop-iso-b")

	v := createVehicle(t, orgA.ID)

	// The other tenant must not see the row.
	_, err := testDB.GetVehicle(ctx, orgB.ID, v.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	vehicles, err := testDB.ListVehicles(ctx, orgB.ID, nil, 100, 0)
	require.NoError(t, err)
	for _, got := range vehicles {
		assert.NotEqual(t, v.ID, got.ID)
	}
}

func TestDuplicateVINConflict(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-vin")

	v := createVehicle(t, org.ID)
	_, err := testDB.CreateVehicle(ctx, model.Vehicle{
		OrgID: org.ID, VIN: v.VIN, Make: "Honda", Model: "Civic", Year: 2020,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestAppointmentsInRange(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-cal")
	v := createVehicle(t, org.ID)

	base := time.Now().UTC().Truncate(time.Hour)
	for i, offset := range []time.Duration{0, 24 * time.Hour, 30 * 24 * time.Hour} {
		_, err := testDB.CreateAppointment(ctx, model.Appointment{
			OrgID:       org.ID,
			VehicleID:   v.ID,
			ServiceType: fmt.Sprintf("service-%d", i),
			StartsAt:    base.Add(offset),
			EndsAt:      base.Add(offset + time.Hour),
		})
		require.NoError(t, err)
	}

	appts, err := testDB.ListAppointmentsInRange(ctx, org.ID, base.Add(-time.Hour), base.Add(48*time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, appts, 2)
	// Ordered by start time.
	assert.True(t, appts[0].StartsAt.Before(appts[1].StartsAt))
}

func TestInvoiceNumberingAndTransitions(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-inv")

	inv1, err := testDB.CreateInvoice(ctx, model.Invoice{
		OrgID:    org.ID,
		Lines:    []model.InvoiceLine{{Description: "oil change", Quantity: 1, UnitCents: 8000}},
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", inv1.Number)
	assert.Equal(t, int64(8000), inv1.TotalCents)
	assert.Equal(t, model.InvoiceDraft, inv1.Status)

	inv2, err := testDB.CreateInvoice(ctx, model.Invoice{
		OrgID:    org.ID,
		Lines:    []model.InvoiceLine{{Description: "brake pads", Quantity: 2, UnitCents: 4500}},
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-00002", inv2.Number)
	assert.Equal(t, int64(9000), inv2.TotalCents)

	// draft -> paid is not a legal transition.
	err = testDB.TransitionInvoice(ctx, org.ID, inv1.ID, model.InvoicePaid)
	require.Error(t, err)

	require.NoError(t, testDB.TransitionInvoice(ctx, org.ID, inv1.ID, model.InvoiceIssued))
	require.NoError(t, testDB.TransitionInvoice(ctx, org.ID, inv1.ID, model.InvoicePaid))

	got, err := testDB.GetInvoice(ctx, org.ID, inv1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.NotNil(t, got.IssuedAt)
	assert.NotNil(t, got.PaidAt)
}

func TestOperationLogAppendAndList(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-logs")

	entry := model.OperationLogEntry{
		ID:        uuid.New(),
		OrgID:     &org.ID,
		Level:     model.LogInfo,
		Source:    "visionTool",
		Message:   "operation started: analyzeImage",
		Data:      map[string]any{"operationId": "op_1_abc"},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, testDB.AppendOperationLog(ctx, entry))

	source := "visionTool"
	entries, err := testDB.ListOperationLogs(ctx, org.ID, &source, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "op_1_abc", entries[0].Data["operationId"])
}

func TestTrajectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-traj")

	tr, err := testDB.CreateTrajectory(ctx, model.Trajectory{
		OrgID:     org.ID,
		AgentName: "SupervisorAgent",
		Content:   `{"task":"inspect brakes","agentSequence":["PerceptionAgent"],"contextData":{},"summary":"done"}`,
	})
	require.NoError(t, err)

	list, err := testDB.ListTrajectories(ctx, org.ID, nil, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, tr.ID, list[0].ID)
	assert.Equal(t, "SupervisorAgent", list[0].AgentName)
}

func TestPolicyVersionBump(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-policy")

	_, err := testDB.GetLatestPolicyVersion(ctx, org.ID, "DynamicPricingAgent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	p1, err := testDB.BumpPolicyVersion(ctx, org.ID, "DynamicPricingAgent", map[string]any{"loss": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Version)

	p2, err := testDB.BumpPolicyVersion(ctx, org.ID, "DynamicPricingAgent", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Version)

	latest, err := testDB.GetLatestPolicyVersion(ctx, org.ID, "DynamicPricingAgent")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
}

func TestConcurrentPolicyBumps(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-policy-race")

	const n = 8
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := testDB.BumpPolicyVersion(ctx, org.ID, "InsightsAgent", nil)
			errs <- err
		}()
	}
	for range n {
		require.NoError(t, <-errs)
	}

	latest, err := testDB.GetLatestPolicyVersion(ctx, org.ID, "InsightsAgent")
	require.NoError(t, err)
	// FOR UPDATE serializes the bumps: no duplicates, no gaps.
	assert.Equal(t, n, latest.Version)
}

func TestExperienceRoundTrip(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-exp")

	for i := range 3 {
		_, err := testDB.RecordExperience(ctx, model.Experience{
			OrgID:     org.ID,
			AgentName: "SchedulerAgent",
			State:     map[string]any{"queue": i},
			Action:    "schedule",
			Reward:    float64(i),
		})
		require.NoError(t, err)
	}

	exps, err := testDB.ListExperiences(ctx, org.ID, "SchedulerAgent", 2)
	require.NoError(t, err)
	assert.Len(t, exps, 2)
}

func TestServiceHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-hist")
	v := createVehicle(t, org.ID)

	rec, err := testDB.CreateServiceRecord(ctx, model.ServiceRecord{
		OrgID:       org.ID,
		VehicleID:   v.ID,
		ServiceType: "brake_service",
		Description: "replaced front brake pads and rotors",
		CostCents:   42000,
		PerformedAt: time.Now().UTC().AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	hydrated, err := testDB.GetServiceRecords(ctx, org.ID, []uuid.UUID{rec.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, hydrated, 1)
	assert.Equal(t, "brake_service", hydrated[rec.ID].ServiceType)

	list, err := testDB.ListServiceHistoryByVehicle(ctx, org.ID, v.ID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAccountLookup(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-acct")

	hash := "fake-hash"
	accountID := fmt.Sprintf("mechanic-%s", uuid.New().String()[:8])
	a, err := testDB.CreateAccount(ctx, model.Account{
		AccountID:  accountID,
		OrgID:      org.ID,
		Name:       "Mechanic",
		Email:      "mech@example.com",
		Role:       model.RoleMember,
		APIKeyHash: &hash,
	})
	require.NoError(t, err)

	got, err := testDB.GetAccountByAccountID(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	require.NotNil(t, got.APIKeyHash)

	// Duplicate account_id is rejected.
	_, err = testDB.CreateAccount(ctx, model.Account{
		AccountID: accountID, OrgID: org.ID, Name: "Dup", Email: "d@example.com", Role: model.RoleClient,
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestConcurrentInvoiceCreates(t *testing.T) {
	ctx := context.Background()
	org := createOrg(t, "workshop-inv-race")

	const n = 8
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for range n {
		go func() {
			inv, err := testDB.CreateInvoice(ctx, model.Invoice{
				OrgID:    org.ID,
				Lines:    []model.InvoiceLine{{Description: "inspection", Quantity: 1, UnitCents: 5000}},
				Currency: "EUR",
			})
			numbers <- inv.Number
			errs <- err
		}()
	}

	seen := make(map[string]bool)
	for range n {
		require.NoError(t, <-errs)
		num := <-numbers
		assert.False(t, seen[num], "duplicate invoice number %s", num)
		seen[num] = true
	}
}

func TestWithRetryRetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("storage: commit tx: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := storage.WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, 3, calls)
}

func TestWithRetryPassesThroughNonRetriable(t *testing.T) {
	sentinel := errors.New("permanent")
	calls := 0
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}
