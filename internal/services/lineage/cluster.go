// Package lineage reconstructs resubmission chains for legacy audits that
// predate explicit linkage metadata. Proposing clusters and committing the
// resulting linkage are separate steps: false merges (unrelated entities
// sharing a UEI) and false splits (same entity, typoed UEI) are both
// possible, so a human reviews every proposal before anything is written.
//
// The batch must not run concurrently against the same audit year. That is
// an operational constraint, not a runtime lock; the operator tool is the
// only entry point. A partial run is safe to restart: records that already
// carry resubmission metadata are excluded from the next candidate set.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
)

// Member is one record inside a proposed cluster, annotated with the summed
// distance to the cluster at the moment it was absorbed and its insertion
// order in the clustering loop.
type Member struct {
	ReportID    string    `json:"report_id"`
	Distance    int       `json:"distance"`
	Order       int       `json:"order"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ClusterProposal is one believed resubmission chain, members ordered oldest
// to newest by their earliest submitted transition.
type ClusterProposal struct {
	AuditYear int      `json:"audit_year"`
	Members   []Member `json:"members"`
}

// CommitResult summarizes a linkage write-back run.
type CommitResult struct {
	Linked          int `json:"linked"`
	SkippedClusters int `json:"skipped_clusters"`
}

// DataIntegrityError marks a write-back whose target changed since
// clustering ran. It is fatal to its own cluster only; clusters are
// independent and the batch continues.
type DataIntegrityError struct {
	ReportID string
	Detail   string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("linkage write-back for %s: %s", e.ReportID, e.Detail)
}

// Engine runs the offline clustering batch for one audit year.
type Engine struct {
	queries ports.RecordQueries
	history ports.HistoryRepository
	store   ports.RecordStore
	log     *logrus.Logger
}

func NewEngine(queries ports.RecordQueries, history ports.HistoryRepository, store ports.RecordStore, log *logrus.Logger) *Engine {
	return &Engine{queries: queries, history: history, store: store, log: log}
}

type candidate struct {
	rec         domain.AuditRecord
	firstSeen   time.Time
	submittedAt time.Time
}

// Propose clusters all legacy disseminated records for auditYear and returns
// every cluster of size > 1 for human review. Nothing is written. Running it
// twice over an unchanged candidate set yields identical proposals.
func (e *Engine) Propose(ctx context.Context, auditYear int) ([]ClusterProposal, error) {
	recs, err := e.queries.LegacyCandidates(ctx, auditYear)
	if err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, len(recs))
	for _, rec := range recs {
		c, err := e.annotate(ctx, rec)
		if err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	// Oldest first, report ID as tie-break for determinism.
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].firstSeen.Equal(cands[j].firstSeen) {
			return cands[i].firstSeen.Before(cands[j].firstSeen)
		}
		return cands[i].rec.ReportID < cands[j].rec.ReportID
	})

	clusters := clusterGreedy(cands)

	var proposals []ClusterProposal
	for _, cl := range clusters {
		if len(cl) < 2 {
			continue
		}
		members := append([]Member(nil), cl...)
		sort.Slice(members, func(i, j int) bool {
			if !members[i].SubmittedAt.Equal(members[j].SubmittedAt) {
				return members[i].SubmittedAt.Before(members[j].SubmittedAt)
			}
			return members[i].ReportID < members[j].ReportID
		})
		proposals = append(proposals, ClusterProposal{AuditYear: auditYear, Members: members})
	}
	e.log.WithFields(logrus.Fields{
		"audit_year": auditYear,
		"candidates": len(cands),
		"clusters":   len(proposals),
	}).Info("lineage clustering proposed")
	return proposals, nil
}

// clusterGreedy is single-linkage with summed member distances: a record
// joins the existing cluster with the minimum total pairwise distance to its
// members when that total is under the threshold, otherwise it founds a new
// singleton. Summing rather than averaging makes large clusters harder to
// join, so borderline records do not get absorbed by mass.
func clusterGreedy(cands []candidate) [][]Member {
	type cluster struct {
		records []domain.AuditRecord
		members []Member
	}
	var clusters []*cluster

	for order, c := range cands {
		best := -1
		bestDist := 0
		for i, cl := range clusters {
			sum := 0
			for _, r := range cl.records {
				sum += Distance(c.rec, r)
			}
			if best == -1 || sum < bestDist {
				best, bestDist = i, sum
			}
		}
		m := Member{
			ReportID:    c.rec.ReportID,
			Order:       order,
			SubmittedAt: c.submittedAt,
		}
		if best >= 0 && bestDist < clusterThreshold {
			m.Distance = bestDist
			clusters[best].records = append(clusters[best].records, c.rec)
			clusters[best].members = append(clusters[best].members, m)
			continue
		}
		clusters = append(clusters, &cluster{
			records: []domain.AuditRecord{c.rec},
			members: []Member{m},
		})
	}

	out := make([][]Member, len(clusters))
	for i, cl := range clusters {
		out[i] = cl.members
	}
	return out
}

func (e *Engine) annotate(ctx context.Context, rec domain.AuditRecord) (candidate, error) {
	entries, err := e.history.ListByReport(ctx, rec.ReportID)
	if err != nil {
		return candidate{}, err
	}
	c := candidate{rec: rec}
	for _, entry := range entries {
		if c.firstSeen.IsZero() || entry.CreatedAt.Before(c.firstSeen) {
			c.firstSeen = entry.CreatedAt
		}
		if entry.EventType == domain.EventSubmitted &&
			(c.submittedAt.IsZero() || entry.CreatedAt.Before(c.submittedAt)) {
			c.submittedAt = entry.CreatedAt
		}
	}
	if c.submittedAt.IsZero() {
		c.submittedAt = c.firstSeen
	}
	return c, nil
}

// Commit applies approved proposals, linking each cluster oldest to newest
// through the atomic save path. A cluster whose records changed since
// clustering ran is skipped with a logged DataIntegrityError; storage
// failures abort the run.
func (e *Engine) Commit(ctx context.Context, auditYear int, approved []ClusterProposal) (CommitResult, error) {
	var res CommitResult
	for _, prop := range approved {
		if len(prop.Members) < 2 {
			continue
		}
		if err := e.commitCluster(ctx, prop); err != nil {
			var die *DataIntegrityError
			if errors.As(err, &die) {
				e.log.WithFields(logrus.Fields{
					"audit_year": auditYear,
					"report_id":  die.ReportID,
				}).Warnf("skipping cluster: %s", die.Detail)
				res.SkippedClusters++
				continue
			}
			return res, err
		}
		res.Linked += len(prop.Members)
	}
	return res, nil
}

func (e *Engine) commitCluster(ctx context.Context, prop ClusterProposal) error {
	recs := make([]domain.AuditRecord, len(prop.Members))
	for i, m := range prop.Members {
		rec, err := e.store.Get(ctx, m.ReportID)
		if errors.Is(err, domain.ErrNotFound) {
			return &DataIntegrityError{ReportID: m.ReportID, Detail: "record disappeared since clustering ran"}
		}
		if err != nil {
			return err
		}
		if rec.Payload.ResubmissionMeta != nil {
			return &DataIntegrityError{ReportID: m.ReportID, Detail: "resubmission metadata changed since clustering ran"}
		}
		if rec.SubmissionStatus != domain.StatusDisseminated {
			return &DataIntegrityError{ReportID: m.ReportID, Detail: "record is no longer disseminated"}
		}
		recs[i] = rec
	}

	for i := range recs {
		meta := &domain.ResubmissionMeta{
			Version: i + 1,
			Status:  domain.ResubmissionMostRecent,
		}
		if i > 0 {
			prev := recs[i-1].ReportID
			meta.PreviousReportID = &prev
		}
		if i < len(recs)-1 {
			meta.Status = domain.ResubmissionDeprecated
			next := recs[i+1].ReportID
			meta.NextReportID = &next
		}
		rec := recs[i]
		rec.Payload.ResubmissionMeta = meta
		if i < len(recs)-1 {
			// Superseded records leave the disseminated set, which is the
			// signal the dissemination read path re-derives from.
			rec.SubmissionStatus = domain.StatusResubmitted
		}
		if _, err := e.store.Save(ctx, rec, "lineage-batch", domain.EventLinkageApplied); err != nil {
			var ce *domain.ConcurrencyError
			if errors.As(err, &ce) {
				// The chain is written one save at a time, so a race on a
				// later member strands the earlier ones with metadata that
				// points into a chain that never completed. Unwind them;
				// otherwise they would be excluded from every future
				// candidate set and the chain could never be repaired.
				if uerr := e.unlink(ctx, recs[:i]); uerr != nil {
					return uerr
				}
				return &DataIntegrityError{ReportID: rec.ReportID, Detail: err.Error()}
			}
			return err
		}
	}
	return nil
}

// unlink restores members already written by a commit that cannot finish:
// metadata comes off and the record returns to the disseminated set, exactly
// as if the cluster had been skipped up front. Newest first, so a crash
// mid-unwind leaves at most a prefix to clean up on the next run.
func (e *Engine) unlink(ctx context.Context, written []domain.AuditRecord) error {
	for i := len(written) - 1; i >= 0; i-- {
		rec, err := e.store.Get(ctx, written[i].ReportID)
		if err != nil {
			return err
		}
		rec.Payload.ResubmissionMeta = nil
		rec.SubmissionStatus = domain.StatusDisseminated
		if _, err := e.store.Save(ctx, rec, "lineage-batch", domain.EventLinkageApplied); err != nil {
			return err
		}
	}
	return nil
}
