// collection.go - Collection handle and the per-verb CRUD wrappers

package minimgo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Collection is a handle on one namespace with its policy defaults.
// The handle is immutable after construction; any number of operations
// may run concurrently against it, each as its own command round trip.
type Collection struct {
	ns  Namespace
	drv Driver
	rp  *readpref.ReadPref
	wc  *writeconcern.WriteConcern
	mon CommandMonitor
}

// WriteResult reports the outcome of a write verb.
type WriteResult struct {
	Matched     int64
	Modified    int64
	Removed     int64
	Inserted    int64
	UpsertedID  interface{}
	InsertedIDs []interface{}
}

// Namespace returns the collection's namespace.
func (c *Collection) Namespace() Namespace { return c.ns }

// Name returns the collection name half of the namespace.
func (c *Collection) Name() string { return c.ns.Collection() }

// WithReadPreference returns a handle sharing the driver and namespace
// with the given default read preference.
func (c *Collection) WithReadPreference(rp *readpref.ReadPref) *Collection {
	clone := *c
	clone.rp = rp
	return &clone
}

// WithWriteConcern returns a handle sharing the driver and namespace
// with the given default write concern.
func (c *Collection) WithWriteConcern(wc *writeconcern.WriteConcern) *Collection {
	clone := *c
	clone.wc = wc
	return &clone
}

// ensureID makes sure the document carries an _id, generating an
// ObjectID when absent, and returns the id alongside the document.
func ensureID(doc bson.D) (bson.D, interface{}) {
	for _, e := range doc {
		if e.Key == "_id" {
			return doc, e.Value
		}
	}
	id := primitive.NewObjectID()
	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: "_id", Value: id})
	out = append(out, doc...)
	return out, id
}

// InsertOne inserts a single document, generating an _id when the
// document has none.
func (c *Collection) InsertOne(ctx context.Context, document interface{}) (*WriteResult, error) {
	return c.InsertMany(ctx, []interface{}{document})
}

// InsertMany inserts the given documents in one command.
func (c *Collection) InsertMany(ctx context.Context, documents []interface{}) (*WriteResult, error) {
	if len(documents) == 0 {
		return nil, invalidArgf("insert requires at least one document")
	}
	docs := make([]bson.D, 0, len(documents))
	ids := make([]interface{}, 0, len(documents))
	for _, d := range documents {
		doc, err := toDocument(d)
		if err != nil {
			return nil, err
		}
		doc, id := ensureID(doc)
		docs = append(docs, doc)
		ids = append(ids, id)
	}
	cmd := buildInsert(c.ns, docs, resolveWriteConcern(nil, c.wc))
	res, err := execute(ctx, c.drv, c.mon, c.ns, "insert", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	var decoded struct {
		N int64 `bson:"n"`
	}
	if err := bson.Unmarshal(res, &decoded); err != nil {
		return nil, err
	}
	return &WriteResult{Inserted: decoded.N, InsertedIDs: ids}, nil
}

// UpdateOne applies an update-operator document to at most one match.
// A bare replacement document is rejected; use ReplaceOne for that.
func (c *Collection) UpdateOne(ctx context.Context, filter, update interface{}, opts *UpdateOptions) (*WriteResult, error) {
	return c.update(ctx, filter, update, opts, false)
}

// UpdateMany applies an update-operator document to every match.
func (c *Collection) UpdateMany(ctx context.Context, filter, update interface{}, opts *UpdateOptions) (*WriteResult, error) {
	return c.update(ctx, filter, update, opts, true)
}

func (c *Collection) update(ctx context.Context, filter, update interface{}, opts *UpdateOptions, multi bool) (*WriteResult, error) {
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	u, err := toDocument(update)
	if err != nil {
		return nil, err
	}
	isUpdate, err := classifyBody(u)
	if err != nil {
		return nil, err
	}
	if !isUpdate {
		return nil, invalidArgf("update document must contain key beginning with '$'")
	}
	upsert := opts != nil && opts.Upsert
	cmd := buildUpdate(c.ns, []updateSpec{{q: q, u: u, multi: multi, upsert: upsert}}, resolveWriteConcern(nil, c.wc))
	res, err := execute(ctx, c.drv, c.mon, c.ns, "update", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	return decodeUpdateResult(res)
}

// ReplaceOne replaces at most one match with a full replacement
// document. A body holding update operators is rejected.
func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement interface{}, opts *ReplaceOptions) (*WriteResult, error) {
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	u, err := toDocument(replacement)
	if err != nil {
		return nil, err
	}
	isUpdate, err := classifyBody(u)
	if err != nil {
		return nil, err
	}
	if isUpdate {
		return nil, invalidArgf("replacement document cannot contain keys beginning with '$'")
	}
	upsert := opts != nil && opts.Upsert
	cmd := buildUpdate(c.ns, []updateSpec{{q: q, u: u, upsert: upsert}}, resolveWriteConcern(nil, c.wc))
	res, err := execute(ctx, c.drv, c.mon, c.ns, "update", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	return decodeUpdateResult(res)
}

func decodeUpdateResult(res bson.Raw) (*WriteResult, error) {
	var decoded struct {
		N         int64 `bson:"n"`
		NModified int64 `bson:"nModified"`
		Upserted  []struct {
			Index int64       `bson:"index"`
			ID    interface{} `bson:"_id"`
		} `bson:"upserted"`
	}
	if err := bson.Unmarshal(res, &decoded); err != nil {
		return nil, err
	}
	wr := &WriteResult{Matched: decoded.N, Modified: decoded.NModified}
	if len(decoded.Upserted) > 0 {
		wr.UpsertedID = decoded.Upserted[0].ID
		// An upserted document was not matched.
		wr.Matched -= int64(len(decoded.Upserted))
	}
	return wr, nil
}

// DeleteOne removes at most one match.
func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (*WriteResult, error) {
	return c.delete(ctx, filter, 1)
}

// DeleteMany removes every match.
func (c *Collection) DeleteMany(ctx context.Context, filter interface{}) (*WriteResult, error) {
	return c.delete(ctx, filter, 0)
}

func (c *Collection) delete(ctx context.Context, filter interface{}, limit int32) (*WriteResult, error) {
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	cmd := buildDelete(c.ns, []deleteSpec{{q: q, limit: limit}}, resolveWriteConcern(nil, c.wc))
	res, err := execute(ctx, c.drv, c.mon, c.ns, "delete", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	var decoded struct {
		N int64 `bson:"n"`
	}
	if err := bson.Unmarshal(res, &decoded); err != nil {
		return nil, err
	}
	return &WriteResult{Removed: decoded.N}, nil
}

// Find runs a query and returns an iterator over the matches.
func (c *Collection) Find(ctx context.Context, filter interface{}, opts *FindOptions) (*Iter, error) {
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	cmd, err := buildFind(c.ns, q, opts)
	if err != nil {
		return nil, err
	}
	res, err := execute(ctx, c.drv, c.mon, c.ns, "find", cmd, readPolicy(resolveReadPref(nil, c.rp, nil)))
	if err != nil {
		return nil, err
	}
	docs, err := firstBatchDocuments(res)
	if err != nil {
		return nil, err
	}
	return newIter(docs), nil
}

// FindOne decodes the first match into result, returning ErrNotFound
// when nothing matches.
func (c *Collection) FindOne(ctx context.Context, filter interface{}, result interface{}, opts *FindOneOptions) error {
	findOpts := &FindOptions{Limit: 1}
	if opts != nil {
		findOpts.Sort = opts.Sort
		findOpts.Projection = opts.Projection
		findOpts.Skip = opts.Skip
	}
	it, err := c.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}
	if !it.Next(result) {
		if err := it.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	return nil
}

// CountDocuments counts the documents matching the filter.
func (c *Collection) CountDocuments(ctx context.Context, filter interface{}, opts *CountOptions) (int64, error) {
	q, err := toDocument(filter)
	if err != nil {
		return 0, err
	}
	cmd := buildCount(c.ns, q, opts)
	res, err := execute(ctx, c.drv, c.mon, c.ns, "count", cmd, readPolicy(resolveReadPref(nil, c.rp, nil)))
	if err != nil {
		return 0, err
	}
	var decoded struct {
		N int64 `bson:"n"`
	}
	if err := bson.Unmarshal(res, &decoded); err != nil {
		return 0, err
	}
	return decoded.N, nil
}

// Distinct returns the distinct values of the named field among the
// documents matching the filter.
func (c *Collection) Distinct(ctx context.Context, key string, filter interface{}) ([]interface{}, error) {
	if key == "" {
		return nil, invalidArgf("distinct requires a field name")
	}
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	cmd := buildDistinct(c.ns, key, q)
	res, err := execute(ctx, c.drv, c.mon, c.ns, "distinct", cmd, readPolicy(resolveReadPref(nil, c.rp, nil)))
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Values []interface{} `bson:"values"`
	}
	if err := bson.Unmarshal(res, &decoded); err != nil {
		return nil, err
	}
	return decoded.Values, nil
}

// Aggregate runs an aggregation pipeline. Pipelines ending in an
// output stage are forced to the primary regardless of the handle's
// read preference.
func (c *Collection) Aggregate(ctx context.Context, pipeline interface{}, opts *AggregateOptions) (*Iter, error) {
	stages, err := toPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	var wc *writeconcern.WriteConcern
	if hasOutputStage(stages) {
		wc = resolveWriteConcern(nil, c.wc)
	}
	cmd, err := buildAggregate(c.ns, stages, opts, wc)
	if err != nil {
		return nil, err
	}
	res, err := execute(ctx, c.drv, c.mon, c.ns, "aggregate", cmd, readPolicy(resolveReadPref(nil, c.rp, stages)))
	if err != nil {
		return nil, err
	}
	docs, err := firstBatchDocuments(res)
	if err != nil {
		return nil, err
	}
	return newIter(docs), nil
}

// Drop removes the collection. Dropping a collection that does not
// exist is not an error: the returned document then reads
// {ok: 0, errmsg: "ns not found"}.
func (c *Collection) Drop(ctx context.Context) (bson.Raw, error) {
	cmd := buildDrop(c.ns, resolveWriteConcern(nil, c.wc))
	res, err := execute(ctx, c.drv, c.mon, c.ns, "drop", cmd, writePolicy())
	if err != nil {
		if err.Error() == nsNotFound {
			return syntheticDropResult(), nil
		}
		return nil, err
	}
	return res, nil
}
