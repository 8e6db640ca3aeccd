// command.go - Builders turning typed operations into wire command documents

package minimgo

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// toDocument converts any caller-supplied document (bson.D, bson.M,
// map, struct with bson tags) into a normalized bson.D. Values are
// round-tripped through the bson codec so nested documents come out as
// bson.D and numbers as int32/int64/float64, the same shapes a server
// response would decode to. nil converts to an empty document.
func toDocument(v interface{}) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, invalidArgf("cannot marshal %T as a document: %v", v, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, invalidArgf("cannot decode %T as a document: %v", v, err)
	}
	return doc, nil
}

// toPipeline converts a caller-supplied aggregation pipeline into a
// validated stage list. A single stage document is wrapped into a
// one-stage pipeline. Every stage must hold exactly one top-level
// element whose key names a stage operator.
func toPipeline(v interface{}) ([]bson.D, error) {
	var raw []interface{}
	switch p := v.(type) {
	case nil:
		return nil, invalidArgf("pipeline must not be nil")
	case []bson.D:
		raw = make([]interface{}, len(p))
		for i := range p {
			raw[i] = p[i]
		}
	case []bson.M:
		raw = make([]interface{}, len(p))
		for i := range p {
			raw[i] = p[i]
		}
	case []interface{}:
		raw = p
	case bson.A:
		raw = p
	default:
		raw = []interface{}{v}
	}

	stages := make([]bson.D, 0, len(raw))
	for i, s := range raw {
		stage, err := toDocument(s)
		if err != nil {
			return nil, err
		}
		if len(stage) != 1 {
			return nil, invalidArgf("pipeline stage %d must contain exactly one element", i)
		}
		if !strings.HasPrefix(stage[0].Key, "$") {
			return nil, invalidArgf("pipeline stage %d has no stage operator, got key %q", i, stage[0].Key)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// hasUpdateOperators reports whether the document carries a top-level
// MongoDB update operator (a key starting with "$").
func hasUpdateOperators(doc bson.D) bool {
	for _, e := range doc {
		if strings.HasPrefix(e.Key, "$") {
			return true
		}
	}
	return false
}

// classifyBody decides whether a modification body is an update
// document (operator keys only) or a full replacement (no operator
// keys). A body mixing both shapes is rejected before any network call.
func classifyBody(doc bson.D) (isUpdate bool, err error) {
	ops, plain := 0, 0
	for _, e := range doc {
		if strings.HasPrefix(e.Key, "$") {
			ops++
		} else {
			plain++
		}
	}
	if ops > 0 && plain > 0 {
		return false, invalidArgf("document mixes update operators with replacement fields")
	}
	return ops > 0, nil
}

// writeConcernDocument renders a write concern as its command
// sub-document. A nil concern renders as nil so the command omits the
// field and the server default applies.
func writeConcernDocument(wc *writeconcern.WriteConcern) bson.D {
	if wc == nil {
		return nil
	}
	var doc bson.D
	if wc.W != nil {
		doc = append(doc, bson.E{Key: "w", Value: wc.W})
	}
	if wc.Journal != nil {
		doc = append(doc, bson.E{Key: "j", Value: *wc.Journal})
	}
	if wc.WTimeout > 0 {
		doc = append(doc, bson.E{Key: "wtimeout", Value: int64(wc.WTimeout / time.Millisecond)})
	}
	return doc
}

func appendWriteConcern(cmd bson.D, wc *writeconcern.WriteConcern) bson.D {
	if doc := writeConcernDocument(wc); doc != nil {
		cmd = append(cmd, bson.E{Key: "writeConcern", Value: doc})
	}
	return cmd
}

func buildFind(ns Namespace, filter bson.D, opts *FindOptions) (bson.D, error) {
	cmd := bson.D{
		{Key: "find", Value: ns.Collection()},
		{Key: "filter", Value: filter},
	}
	if opts == nil {
		return cmd, nil
	}
	if opts.Sort != nil {
		sort, err := toDocument(opts.Sort)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, bson.E{Key: "sort", Value: sort})
	}
	if opts.Projection != nil {
		proj, err := toDocument(opts.Projection)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, bson.E{Key: "projection", Value: proj})
	}
	if opts.Skip > 0 {
		cmd = append(cmd, bson.E{Key: "skip", Value: opts.Skip})
	}
	if opts.Limit > 0 {
		cmd = append(cmd, bson.E{Key: "limit", Value: opts.Limit})
	}
	return cmd, nil
}

func buildInsert(ns Namespace, docs []bson.D, wc *writeconcern.WriteConcern) bson.D {
	documents := make(bson.A, len(docs))
	for i := range docs {
		documents[i] = docs[i]
	}
	cmd := bson.D{
		{Key: "insert", Value: ns.Collection()},
		{Key: "documents", Value: documents},
	}
	return appendWriteConcern(cmd, wc)
}

// updateSpec is one entry of an update command's updates array.
type updateSpec struct {
	q      bson.D
	u      bson.D
	multi  bool
	upsert bool
}

func buildUpdate(ns Namespace, specs []updateSpec, wc *writeconcern.WriteConcern) bson.D {
	updates := make(bson.A, 0, len(specs))
	for _, s := range specs {
		updates = append(updates, bson.D{
			{Key: "q", Value: s.q},
			{Key: "u", Value: s.u},
			{Key: "multi", Value: s.multi},
			{Key: "upsert", Value: s.upsert},
		})
	}
	cmd := bson.D{
		{Key: "update", Value: ns.Collection()},
		{Key: "updates", Value: updates},
	}
	return appendWriteConcern(cmd, wc)
}

// deleteSpec is one entry of a delete command's deletes array. limit 1
// removes at most one document, limit 0 removes every match.
type deleteSpec struct {
	q     bson.D
	limit int32
}

func buildDelete(ns Namespace, specs []deleteSpec, wc *writeconcern.WriteConcern) bson.D {
	deletes := make(bson.A, 0, len(specs))
	for _, s := range specs {
		deletes = append(deletes, bson.D{
			{Key: "q", Value: s.q},
			{Key: "limit", Value: s.limit},
		})
	}
	cmd := bson.D{
		{Key: "delete", Value: ns.Collection()},
		{Key: "deletes", Value: deletes},
	}
	return appendWriteConcern(cmd, wc)
}

func buildDrop(ns Namespace, wc *writeconcern.WriteConcern) bson.D {
	cmd := bson.D{{Key: "drop", Value: ns.Collection()}}
	return appendWriteConcern(cmd, wc)
}

func buildCount(ns Namespace, filter bson.D, opts *CountOptions) bson.D {
	cmd := bson.D{
		{Key: "count", Value: ns.Collection()},
		{Key: "query", Value: filter},
	}
	if opts != nil {
		if opts.Skip > 0 {
			cmd = append(cmd, bson.E{Key: "skip", Value: opts.Skip})
		}
		if opts.Limit > 0 {
			cmd = append(cmd, bson.E{Key: "limit", Value: opts.Limit})
		}
	}
	return cmd
}

func buildDistinct(ns Namespace, key string, filter bson.D) bson.D {
	return bson.D{
		{Key: "distinct", Value: ns.Collection()},
		{Key: "key", Value: key},
		{Key: "query", Value: filter},
	}
}

func buildListIndexes(ns Namespace) bson.D {
	return bson.D{{Key: "listIndexes", Value: ns.Collection()}}
}

func buildAggregate(ns Namespace, pipeline []bson.D, opts *AggregateOptions, wc *writeconcern.WriteConcern) (bson.D, error) {
	stages := make(bson.A, len(pipeline))
	for i := range pipeline {
		stages[i] = pipeline[i]
	}
	cursor := bson.D{}
	if opts != nil && opts.BatchSize > 0 {
		cursor = append(cursor, bson.E{Key: "batchSize", Value: opts.BatchSize})
	}
	cmd := bson.D{
		{Key: "aggregate", Value: ns.Collection()},
		{Key: "pipeline", Value: stages},
		{Key: "cursor", Value: cursor},
	}
	if opts != nil {
		if opts.AllowDiskUse {
			cmd = append(cmd, bson.E{Key: "allowDiskUse", Value: true})
		}
		if opts.MaxTime > 0 {
			cmd = append(cmd, bson.E{Key: "maxTimeMS", Value: int64(opts.MaxTime / time.Millisecond)})
		}
		if opts.Collation != nil {
			coll, err := toDocument(opts.Collation)
			if err != nil {
				return nil, err
			}
			cmd = append(cmd, bson.E{Key: "collation", Value: coll})
		}
	}
	// Only output-stage pipelines write data; a write concern on a pure
	// read pipeline is rejected by older servers.
	if hasOutputStage(pipeline) {
		cmd = appendWriteConcern(cmd, wc)
	}
	return cmd, nil
}

func buildCreateIndexes(ns Namespace, indexes []bson.D, wc *writeconcern.WriteConcern) bson.D {
	arr := make(bson.A, len(indexes))
	for i := range indexes {
		arr[i] = indexes[i]
	}
	cmd := bson.D{
		{Key: "createIndexes", Value: ns.Collection()},
		{Key: "indexes", Value: arr},
	}
	return appendWriteConcern(cmd, wc)
}

func buildDropIndexes(ns Namespace, index string, wc *writeconcern.WriteConcern) bson.D {
	cmd := bson.D{
		{Key: "dropIndexes", Value: ns.Collection()},
		{Key: "index", Value: index},
	}
	return appendWriteConcern(cmd, wc)
}

// generateIndexName derives the server's default index name from the
// key document: each field and its order/type token joined with
// underscores, in key order ({a:1, b:-1} becomes "a_1_b_-1").
func generateIndexName(keys bson.D) (string, error) {
	var name strings.Builder
	for i, e := range keys {
		if i > 0 {
			name.WriteByte('_')
		}
		name.WriteString(e.Key)
		name.WriteByte('_')
		switch v := e.Value.(type) {
		case int:
			name.WriteString(strconv.Itoa(v))
		case int32:
			name.WriteString(strconv.FormatInt(int64(v), 10))
		case int64:
			name.WriteString(strconv.FormatInt(v, 10))
		case float64:
			if v != float64(int64(v)) {
				return "", invalidArgf("index key %q has a non-integral numeric value", e.Key)
			}
			name.WriteString(strconv.FormatInt(int64(v), 10))
		case string:
			name.WriteString(v)
		default:
			return "", invalidArgf("index key %q must have a numeric or string value, got %T", e.Key, e.Value)
		}
	}
	return name.String(), nil
}
