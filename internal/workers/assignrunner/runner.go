package assignrunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
	"github.com/GSA-TTS/FAC-sub003/internal/services/assignment"
)

// ErrAlreadyAssigned rejects a second assignment attempt. The designation is
// written once at submission completion and is immutable afterwards.
var ErrAlreadyAssigned = errors.New("oversight designation already written")

// Processor performs the oversight-assignment work for one report.
type Processor interface {
	Process(ctx context.Context, reportID string) error
}

// AssignProcessor computes the cognizant/oversight designation for a newly
// submitted audit and writes it through the atomic save path, moving the
// record to disseminated. The designation is written exactly once; it is
// never recomputed after dissemination.
type AssignProcessor struct {
	Store    ports.RecordStore
	Baseline assignment.BaselineProvider
}

func (p AssignProcessor) Process(ctx context.Context, reportID string) error {
	rec, err := p.Store.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if rec.SubmissionStatus == domain.StatusDisseminated ||
		rec.Payload.CognizantAgency != nil || rec.Payload.OversightAgency != nil {
		return fmt.Errorf("report %s: %w", reportID, ErrAlreadyAssigned)
	}
	gi := rec.Payload.GeneralInformation
	asg, err := assignment.AssignWithBaseline(ctx, rec.Payload.FederalAwards, gi.UEI, gi.AuditYear, p.Baseline)
	if err != nil {
		return err
	}
	rec.Payload.CognizantAgency = nil
	rec.Payload.OversightAgency = nil
	agency := asg.Agency
	if asg.Kind == assignment.KindCognizant {
		rec.Payload.CognizantAgency = &agency
	} else {
		rec.Payload.OversightAgency = &agency
	}
	rec.SubmissionStatus = domain.StatusDisseminated
	_, err = p.Store.Save(ctx, rec, "assignment-worker", domain.EventAssigned)
	return err
}

// Run starts worker goroutines that claim assignment jobs and process them.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration, log *logrus.Logger) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan ports.AssignmentJob, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						log.WithError(err).Error("assignment job claim failed")
						break
					}
					if !found {
						break
					}
					jobsCh <- job
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				if err := processor.Process(ctx, job.ReportID); err != nil {
					_ = repo.MarkFailed(ctx, job.ID, err.Error())
					log.WithFields(logrus.Fields{
						"worker": idx,
						"job":    job.ID,
						"report": job.ReportID,
					}).WithError(err).Error("assignment job failed")
					continue
				}
				if err := repo.MarkCompleted(ctx, job.ID); err != nil {
					log.WithFields(logrus.Fields{"worker": idx, "job": job.ID}).WithError(err).Error("assignment job completion failed")
				}
			}
		}(i)
	}
}

// ProcessInline assigns a specific report synchronously using the same
// processor logic as the background workers.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, reportID string) error {
	jobID, err := repo.StartJobForReport(ctx, reportID)
	if err != nil {
		return err
	}
	if err := processor.Process(ctx, reportID); err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}
	return repo.MarkCompleted(ctx, jobID)
}
