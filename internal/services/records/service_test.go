package records

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSA-TTS/FAC-sub003/internal/adapters/memory"
	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

func testPayload(uei string) domain.Payload {
	return domain.Payload{
		GeneralInformation: domain.GeneralInformation{
			UEI:          uei,
			EIN:          "123456789",
			AuditeeName:  "Town of Springfield",
			AuditeeEmail: "clerk@springfield.example",
			AuditeeState: "IL",
			AuditYear:    2023,
		},
	}
}

func TestCreate_StartsAtVersionZeroWithCreationHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Version)
	assert.Equal(t, domain.StatusInProgress, rec.SubmissionStatus)
	assert.True(t, strings.Contains(rec.ReportID, "-GSAFAC-"), "report id %q", rec.ReportID)

	entries, err := store.ListByReport(ctx, rec.ReportID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventCreated, entries[0].EventType)
	assert.Equal(t, 0, entries[0].Version)
}

func TestSave_VersionEqualsSaveCountAndHistoryGrowsByOne(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)

	const saves = 5
	for i := 0; i < saves; i++ {
		rec.Payload.GeneralInformation.AuditeeAddress = "100 Main St"
		rec, err = svc.Save(ctx, rec, "tester", domain.EventUpdated)
		require.NoError(t, err)
		assert.Equal(t, i+1, rec.Version)
	}

	entries, err := store.ListByReport(ctx, rec.ReportID)
	require.NoError(t, err)
	assert.Len(t, entries, saves+1, "one history entry per save plus creation")
}

func TestSave_StaleVersionYieldsConcurrencyError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)

	stale := rec
	_, err = svc.Save(ctx, rec, "writer-a", domain.EventUpdated)
	require.NoError(t, err)

	_, err = svc.Save(ctx, stale, "writer-b", domain.EventUpdated)
	var ce *domain.ConcurrencyError
	require.True(t, errors.As(err, &ce), "expected ConcurrencyError, got %v", err)
	assert.Equal(t, 0, ce.Observed)
	assert.Equal(t, 1, ce.Current)
}

func TestSave_ConcurrentWritersExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Save(ctx, rec, "racer", domain.EventUpdated)
			mu.Lock()
			defer mu.Unlock()
			var ce *domain.ConcurrencyError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &ce):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one writer must win")
	assert.Equal(t, writers-1, conflicts)

	final, err := svc.Get(ctx, rec.ReportID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Version, "no double increment")
}

func TestSave_RejectsBackwardStatusTransition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)
	rec.SubmissionStatus = domain.StatusSubmitted
	rec, err = svc.Save(ctx, rec, "tester", domain.EventSubmitted)
	require.NoError(t, err)

	rec.SubmissionStatus = domain.StatusInProgress
	_, err = svc.Save(ctx, rec, "tester", domain.EventUpdated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status transition")
}

func TestSave_AdministrativeEventBypassesTransitionCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store)

	rec, err := svc.Create(ctx, testPayload("UEI0001AAAA"), "tester")
	require.NoError(t, err)
	rec.SubmissionStatus = domain.StatusDisseminated
	rec, err = svc.Save(ctx, rec, "tester", domain.EventDisseminated)
	require.NoError(t, err)

	// Suppression may rewind state the normal lifecycle never would.
	rec.SubmissionStatus = domain.StatusSubmitted
	_, err = svc.Save(ctx, rec, "admin", domain.EventSuppressed)
	require.NoError(t, err)
}
