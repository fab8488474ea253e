package lineage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSA-TTS/FAC-sub003/internal/adapters/memory"
	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
	"github.com/GSA-TTS/FAC-sub003/internal/services/records"
)

var t0 = time.Date(2023, 9, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	reportID string
	gi       domain.GeneralInformation
	seen     time.Time
}

func seedLegacy(t *testing.T, store *memory.Store, f fixture) {
	t.Helper()
	rec := domain.AuditRecord{
		ReportID:         f.reportID,
		Version:          1,
		SubmissionStatus: domain.StatusDisseminated,
		Payload:          domain.Payload{GeneralInformation: f.gi},
		CreatedAt:        f.seen,
		UpdatedAt:        f.seen,
	}
	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		EventType: domain.EventSubmitted,
		ReportID:  f.reportID,
		Version:   1,
		Snapshot:  rec.Payload,
		Actor:     "seed",
		CreatedAt: f.seen,
	}
	require.NoError(t, store.Create(context.Background(), rec, entry))
}

func springfield(reportID, email string, seen time.Time) fixture {
	return fixture{
		reportID: reportID,
		gi: domain.GeneralInformation{
			UEI:          "SPRNGFLD0001",
			EIN:          "111111111",
			AuditeeName:  "Town of Springfield",
			AuditeeEmail: email,
			AuditeeState: "IL",
			AuditYear:    2023,
		},
		seen: seen,
	}
}

func shelbyville(reportID string, seen time.Time) fixture {
	return fixture{
		reportID: reportID,
		gi: domain.GeneralInformation{
			UEI:          "SHLBYVLL0002",
			EIN:          "222222222",
			AuditeeName:  "City of Shelbyville",
			AuditeeEmail: "clerk@shelbyville.example",
			AuditeeState: "IL",
			AuditYear:    2023,
		},
		seen: seen,
	}
}

func newTestEngine(store *memory.Store) *Engine {
	return NewEngine(store, store, records.New(store), quietLogger())
}

func TestPropose_GroupsNearDuplicatesAndSplitsDistinctEntities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := newTestEngine(store)

	// Two Springfield submissions differing by a one-character email typo
	// (distance 1, under the threshold), plus an unrelated entity.
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))
	seedLegacy(t, store, shelbyville("2023-06-GSAFAC-CLUSTER003", t0.Add(2*time.Hour)))

	proposals, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, proposals, 1, "singletons are not proposed")

	members := proposals[0].Members
	require.Len(t, members, 2)
	assert.Equal(t, "2023-06-GSAFAC-CLUSTER001", members[0].ReportID)
	assert.Equal(t, "2023-06-GSAFAC-CLUSTER002", members[1].ReportID)
	assert.Equal(t, 0, members[0].Distance, "cluster founder has no distance")
	assert.Equal(t, 1, members[1].Distance)
}

func TestPropose_IsIdempotentOverUnchangedCandidates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := newTestEngine(store)

	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))
	seedLegacy(t, store, shelbyville("2023-06-GSAFAC-CLUSTER003", t0.Add(2*time.Hour)))

	first, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	second, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCommit_WritesLinkageChainOldestToNewest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := newTestEngine(store)

	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))

	proposals, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	res, err := engine.Commit(ctx, 2023, proposals)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Linked)
	assert.Equal(t, 0, res.SkippedClusters)

	oldest, err := store.Get(ctx, "2023-06-GSAFAC-CLUSTER001")
	require.NoError(t, err)
	require.NotNil(t, oldest.Payload.ResubmissionMeta)
	assert.Equal(t, domain.ResubmissionDeprecated, oldest.Payload.ResubmissionMeta.Status)
	assert.Equal(t, 1, oldest.Payload.ResubmissionMeta.Version)
	require.NotNil(t, oldest.Payload.ResubmissionMeta.NextReportID)
	assert.Equal(t, "2023-06-GSAFAC-CLUSTER002", *oldest.Payload.ResubmissionMeta.NextReportID)
	assert.Equal(t, domain.StatusResubmitted, oldest.SubmissionStatus, "superseded record leaves the disseminated set")
	assert.Equal(t, 2, oldest.Version, "write-back goes through the versioned save path")

	newest, err := store.Get(ctx, "2023-06-GSAFAC-CLUSTER002")
	require.NoError(t, err)
	require.NotNil(t, newest.Payload.ResubmissionMeta)
	assert.Equal(t, domain.ResubmissionMostRecent, newest.Payload.ResubmissionMeta.Status)
	assert.Equal(t, 2, newest.Payload.ResubmissionMeta.Version)
	require.NotNil(t, newest.Payload.ResubmissionMeta.PreviousReportID)
	assert.Equal(t, "2023-06-GSAFAC-CLUSTER001", *newest.Payload.ResubmissionMeta.PreviousReportID)
	assert.Equal(t, domain.StatusDisseminated, newest.SubmissionStatus)
}

func TestCommit_SkipsClusterWhoseRecordChangedSinceClustering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := newTestEngine(store)

	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))

	proposals, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	// Someone links the newer record before the operator commits.
	changed, err := store.Get(ctx, "2023-06-GSAFAC-CLUSTER002")
	require.NoError(t, err)
	changed.Payload.ResubmissionMeta = &domain.ResubmissionMeta{Version: 1, Status: domain.ResubmissionOriginal}
	changed.Version = 2
	require.NoError(t, store.SaveVersioned(ctx, changed, 1, domain.HistoryEntry{
		ID:        uuid.NewString(),
		EventType: domain.EventLinkageApplied,
		ReportID:  changed.ReportID,
		Version:   2,
		Snapshot:  changed.Payload,
		Actor:     "someone-else",
		CreatedAt: t0.Add(2 * time.Hour),
	}))

	res, err := engine.Commit(ctx, 2023, proposals)
	require.NoError(t, err, "an integrity failure is logged, not fatal to the run")
	assert.Equal(t, 0, res.Linked)
	assert.Equal(t, 1, res.SkippedClusters)

	untouched, err := store.Get(ctx, "2023-06-GSAFAC-CLUSTER001")
	require.NoError(t, err)
	assert.Nil(t, untouched.Payload.ResubmissionMeta, "skipped cluster must not be partially linked")
}

// racingStore interposes on the save of one report, bumping its stored
// version first so the engine's own save loses the version check.
type racingStore struct {
	ports.RecordStore
	store  *memory.Store
	target string
	fired  bool
}

func (r *racingStore) Save(ctx context.Context, rec domain.AuditRecord, actor, eventType string) (domain.AuditRecord, error) {
	if rec.ReportID == r.target && !r.fired {
		r.fired = true
		cur, err := r.store.Get(ctx, r.target)
		if err != nil {
			return domain.AuditRecord{}, err
		}
		bumped := cur
		bumped.Version++
		if err := r.store.SaveVersioned(ctx, bumped, cur.Version, domain.HistoryEntry{
			ID:        uuid.NewString(),
			EventType: domain.EventUpdated,
			ReportID:  r.target,
			Version:   bumped.Version,
			Snapshot:  bumped.Payload,
			Actor:     "someone-else",
			CreatedAt: t0.Add(3 * time.Hour),
		}); err != nil {
			return domain.AuditRecord{}, err
		}
	}
	return r.RecordStore.Save(ctx, rec, actor, eventType)
}

func TestCommit_UnwindsChainWhenRaceHitsLaterMember(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))

	rs := &racingStore{RecordStore: records.New(store), store: store, target: "2023-06-GSAFAC-CLUSTER002"}
	engine := NewEngine(store, store, rs, quietLogger())

	proposals, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	// The older member is written before the race hits the newer one; the
	// skipped cluster must not leave it stranded mid-chain.
	res, err := engine.Commit(ctx, 2023, proposals)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Linked)
	assert.Equal(t, 1, res.SkippedClusters)

	oldest, err := store.Get(ctx, "2023-06-GSAFAC-CLUSTER001")
	require.NoError(t, err)
	assert.Nil(t, oldest.Payload.ResubmissionMeta, "skipped cluster must not be partially linked")
	assert.Equal(t, domain.StatusDisseminated, oldest.SubmissionStatus)

	// Both records are still legacy candidates, so a rerun can link them.
	again, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Len(t, again[0].Members, 2)
}

func TestPropose_ExcludesRecordsAlreadyCarryingMetadata(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := newTestEngine(store)

	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER001", "finance@springfield.example", t0))
	seedLegacy(t, store, springfield("2023-06-GSAFAC-CLUSTER002", "fnance@springfield.example", t0.Add(time.Hour)))

	proposals, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	_, err = engine.Commit(ctx, 2023, proposals)
	require.NoError(t, err)

	// A restarted run sees no remaining legacy candidates.
	again, err := engine.Propose(ctx, 2023)
	require.NoError(t, err)
	assert.Empty(t, again)
}
