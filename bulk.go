// bulk.go - Ordered bulk write builder

package minimgo

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

type bulkKind int

const (
	bulkInsert bulkKind = iota
	bulkUpdate
	bulkRemove
)

type bulkOp struct {
	kind   bulkKind
	doc    bson.D // insert document
	q      bson.D
	u      bson.D
	multi  bool
	upsert bool
}

// BulkResult reports the accumulated counts of a bulk run.
type BulkResult struct {
	Matched  int64
	Modified int64
	Inserted int64
	Removed  int64
}

// BulkErrorCase stores an error and the queue position of the
// operation batch that produced it (-1 if unknown).
type BulkErrorCase struct {
	Index int
	Err   error
}

// BulkError aggregates one or more BulkErrorCase instances.
type BulkError struct {
	ecases []BulkErrorCase
}

// Error produces a human-readable summary of one or multiple bulk
// errors.
func (e *BulkError) Error() string {
	if len(e.ecases) == 0 {
		return "invalid BulkError instance: no errors"
	}
	if len(e.ecases) == 1 {
		return e.ecases[0].Err.Error()
	}
	var buf bytes.Buffer
	buf.WriteString("multiple errors in bulk operation:\n")
	seen := make(map[string]bool, len(e.ecases))
	for _, c := range e.ecases {
		msg := c.Err.Error()
		if !seen[msg] {
			seen[msg] = true
			buf.WriteString("  - ")
			buf.WriteString(msg)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// Cases exposes the individual error cases contained in the BulkError.
func (e *BulkError) Cases() []BulkErrorCase {
	return e.ecases
}

// Bulk queues write operations and runs them in batched commands.
// Operations of the same family queued consecutively share a command.
type Bulk struct {
	coll    *Collection
	ops     []bulkOp
	ordered bool
	err     error
}

// Bulk returns an ordered bulk builder for the collection.
func (c *Collection) Bulk() *Bulk {
	return &Bulk{coll: c, ordered: true}
}

// Unordered puts the bulk operation in unordered mode: later batches
// still run after an earlier batch fails.
func (b *Bulk) Unordered() {
	b.ordered = false
}

func (b *Bulk) queueErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Insert queues up documents for insertion.
func (b *Bulk) Insert(docs ...interface{}) {
	for _, d := range docs {
		doc, err := toDocument(d)
		if err != nil {
			b.queueErr(err)
			return
		}
		doc, _ = ensureID(doc)
		b.ops = append(b.ops, bulkOp{kind: bulkInsert, doc: doc})
	}
}

// Update queues up pairs of updating instructions. Each pair updates
// at most one document and requires an update-operator body.
func (b *Bulk) Update(pairs ...interface{}) {
	b.queueUpdate(pairs, false, false)
}

// UpdateAll queues up pairs of updating instructions applying to every
// matching document.
func (b *Bulk) UpdateAll(pairs ...interface{}) {
	b.queueUpdate(pairs, true, false)
}

// Upsert queues up pairs of upserting instructions.
func (b *Bulk) Upsert(pairs ...interface{}) {
	b.queueUpdate(pairs, false, true)
}

func (b *Bulk) queueUpdate(pairs []interface{}, multi, upsert bool) {
	if len(pairs)%2 != 0 {
		panic("Bulk update requires an even number of parameters")
	}
	for i := 0; i < len(pairs); i += 2 {
		q, err := toDocument(pairs[i])
		if err != nil {
			b.queueErr(err)
			return
		}
		u, err := toDocument(pairs[i+1])
		if err != nil {
			b.queueErr(err)
			return
		}
		b.ops = append(b.ops, bulkOp{kind: bulkUpdate, q: q, u: u, multi: multi, upsert: upsert})
	}
}

// Remove queues up selectors each removing at most one document.
func (b *Bulk) Remove(selectors ...interface{}) {
	b.queueRemove(selectors, false)
}

// RemoveAll queues up selectors removing every matching document.
func (b *Bulk) RemoveAll(selectors ...interface{}) {
	b.queueRemove(selectors, true)
}

func (b *Bulk) queueRemove(selectors []interface{}, multi bool) {
	for _, s := range selectors {
		q, err := toDocument(s)
		if err != nil {
			b.queueErr(err)
			return
		}
		b.ops = append(b.ops, bulkOp{kind: bulkRemove, q: q, multi: multi})
	}
}

// Run executes the queued operations as batched commands. In ordered
// mode the first failing batch stops the run; in unordered mode every
// batch runs and the failures are aggregated.
func (b *Bulk) Run(ctx context.Context) (*BulkResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	result := &BulkResult{}
	var ecases []BulkErrorCase

	for start := 0; start < len(b.ops); {
		end := start + 1
		for end < len(b.ops) && b.ops[end].kind == b.ops[start].kind {
			end++
		}
		err := b.runBatch(ctx, b.ops[start:end], result)
		if err != nil {
			ecases = append(ecases, BulkErrorCase{Index: start, Err: err})
			if b.ordered {
				break
			}
		}
		start = end
	}

	if len(ecases) > 0 {
		return result, &BulkError{ecases: ecases}
	}
	return result, nil
}

func (b *Bulk) runBatch(ctx context.Context, ops []bulkOp, result *BulkResult) error {
	c := b.coll
	wc := resolveWriteConcern(nil, c.wc)
	switch ops[0].kind {
	case bulkInsert:
		docs := make([]bson.D, 0, len(ops))
		for _, op := range ops {
			docs = append(docs, op.doc)
		}
		cmd := buildInsert(c.ns, docs, wc)
		res, err := execute(ctx, c.drv, c.mon, c.ns, "insert", cmd, writePolicy())
		if err != nil {
			return err
		}
		var decoded struct {
			N int64 `bson:"n"`
		}
		if err := bson.Unmarshal(res, &decoded); err != nil {
			return err
		}
		result.Inserted += decoded.N
		return nil
	case bulkUpdate:
		specs := make([]updateSpec, 0, len(ops))
		for _, op := range ops {
			specs = append(specs, updateSpec{q: op.q, u: op.u, multi: op.multi, upsert: op.upsert})
		}
		cmd := buildUpdate(c.ns, specs, wc)
		res, err := execute(ctx, c.drv, c.mon, c.ns, "update", cmd, writePolicy())
		if err != nil {
			return err
		}
		wr, err := decodeUpdateResult(res)
		if err != nil {
			return err
		}
		result.Matched += wr.Matched
		result.Modified += wr.Modified
		return nil
	default:
		specs := make([]deleteSpec, 0, len(ops))
		for _, op := range ops {
			limit := int32(1)
			if op.multi {
				limit = 0
			}
			specs = append(specs, deleteSpec{q: op.q, limit: limit})
		}
		cmd := buildDelete(c.ns, specs, wc)
		res, err := execute(ctx, c.drv, c.mon, c.ns, "delete", cmd, writePolicy())
		if err != nil {
			return err
		}
		var decoded struct {
			N int64 `bson:"n"`
		}
		if err := bson.Unmarshal(res, &decoded); err != nil {
			return err
		}
		result.Removed += decoded.N
		return nil
	}
}
