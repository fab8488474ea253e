package ports

import "context"

type AssignmentJob struct {
	ID       string
	ReportID string
}

// JobRepository supports claiming and updating oversight-assignment jobs
// queued at submission completion.
type JobRepository interface {
	Enqueue(ctx context.Context, reportID string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job AssignmentJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	StartJobForReport(ctx context.Context, reportID string) (jobID string, err error)
}
