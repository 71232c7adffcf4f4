package worker

import (
	"context"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
)

// ItemOutcome describes a successfully handled item.
type ItemOutcome struct {
	Skipped  bool
	Category string
	Title    string
	Slug     string
}

// ItemFunc handles one product id. It must be safe for concurrent use.
type ItemFunc func(ctx context.Context, productID uint) (ItemOutcome, error)

// Processor is the per job type strategy of the batch runner.
type Processor interface {
	JobType() config.JobType
	// Paced reports whether chunks must be spaced out because items call a
	// rate limited external API.
	Paced() bool
	// Begin runs once per batch. An error wrapping common.ErrUpstreamUnavailable
	// fails every item of the batch without processing any of them.
	Begin(ctx context.Context, cfg dto.JobConfig) (ItemFunc, error)
}
