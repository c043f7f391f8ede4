package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/booktutor/internal/indexer"
)

type IPublishedIndexer interface {
	IndexAllPublished(ctx context.Context) (*indexer.IndexReport, error)
}

type ReindexJob struct {
	indexer IPublishedIndexer
}

func NewReindexJob(indexer IPublishedIndexer) *ReindexJob {
	return &ReindexJob{indexer: indexer}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

// Run fails when any chapter failed so the scheduler logs the run as failed.
func (j *ReindexJob) Run(ctx context.Context) error {
	if j.indexer == nil {
		return nil
	}
	report, err := j.indexer.IndexAllPublished(ctx)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("reindex failed for %d of %d chapters: %s", len(report.Failed), report.Total, strings.Join(report.Failed, ","))
	}
	return nil
}
