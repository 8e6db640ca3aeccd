// pipe.go - Fluent aggregation pipeline construction

package minimgo

import (
	"context"
	"time"
)

// Pipe builds up an aggregation run against one collection. Stage
// validation happens at construction; execution goes through the same
// command engine as every other operation.
type Pipe struct {
	coll *Collection
	opts AggregateOptions
	err  error

	pipeline interface{}
}

// Pipe prepares an aggregation pipeline. The pipeline may be a slice
// of stage documents or a single stage document.
func (c *Collection) Pipe(pipeline interface{}) *Pipe {
	return &Pipe{coll: c, pipeline: pipeline}
}

// AllowDiskUse enables writing to temporary files during aggregation.
func (p *Pipe) AllowDiskUse() *Pipe {
	p.opts.AllowDiskUse = true
	return p
}

// Batch sets the batch size for the aggregation cursor.
func (p *Pipe) Batch(n int) *Pipe {
	p.opts.BatchSize = int32(n)
	return p
}

// SetMaxTime sets the maximum server-side execution time.
func (p *Pipe) SetMaxTime(d time.Duration) *Pipe {
	p.opts.MaxTime = d
	return p
}

// Collation sets the collation for the aggregation.
func (p *Pipe) Collation(collation *Collation) *Pipe {
	p.opts.Collation = collation
	return p
}

// Iter executes the pipeline and returns an iterator over its output.
func (p *Pipe) Iter(ctx context.Context) (*Iter, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.coll.Aggregate(ctx, p.pipeline, &p.opts)
}

// All executes the pipeline and decodes its whole output into result.
func (p *Pipe) All(ctx context.Context, result interface{}) error {
	it, err := p.Iter(ctx)
	if err != nil {
		return err
	}
	defer it.Close()
	return it.All(result)
}

// One executes the pipeline and decodes its first output document,
// returning ErrNotFound when the pipeline produces nothing.
func (p *Pipe) One(ctx context.Context, result interface{}) error {
	it, err := p.Iter(ctx)
	if err != nil {
		return err
	}
	defer it.Close()
	if !it.Next(result) {
		if err := it.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	return nil
}
