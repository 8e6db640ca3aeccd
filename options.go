// options.go - Per-call option structs and the default resolver

package minimgo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ReturnDocument selects which image a findAndModify call returns.
type ReturnDocument int

const (
	// Before returns the document as it was prior to the modification.
	// This is the default.
	Before ReturnDocument = iota
	// After returns the document as stored once the modification took
	// effect.
	After
)

// FindOptions shapes a Find call. The zero value means no sort, no
// projection, no skip and no limit.
type FindOptions struct {
	Sort       interface{}
	Projection interface{}
	Skip       int64
	Limit      int64
}

// FindOneOptions shapes a FindOne call.
type FindOneOptions struct {
	Sort       interface{}
	Projection interface{}
	Skip       int64
}

// CountOptions shapes a CountDocuments call.
type CountOptions struct {
	Skip  int64
	Limit int64
}

// UpdateOptions shapes UpdateOne and UpdateMany.
type UpdateOptions struct {
	Upsert bool
}

// ReplaceOptions shapes ReplaceOne.
type ReplaceOptions struct {
	Upsert bool
}

// FindOneAndUpdateOptions shapes FindOneAndUpdate. Projection only
// shapes the returned image; Sort picks the target document when the
// filter matches more than one.
type FindOneAndUpdateOptions struct {
	Projection     interface{}
	Sort           interface{}
	Upsert         bool
	ReturnDocument ReturnDocument
}

// FindOneAndReplaceOptions shapes FindOneAndReplace.
type FindOneAndReplaceOptions struct {
	Projection     interface{}
	Sort           interface{}
	Upsert         bool
	ReturnDocument ReturnDocument
}

// FindOneAndDeleteOptions shapes FindOneAndDelete. The removed
// document's pre-image is always the one returned.
type FindOneAndDeleteOptions struct {
	Projection interface{}
	Sort       interface{}
}

// AggregateOptions shapes pipeline execution.
type AggregateOptions struct {
	AllowDiskUse bool
	BatchSize    int32
	MaxTime      time.Duration
	Collation    *Collation
}

// Collation specifies language-specific rules for string comparison.
// It matches the structure used by MongoDB 3.4+.
type Collation struct {
	Locale          string `bson:"locale"`
	CaseFirst       string `bson:"caseFirst,omitempty"`
	Strength        int    `bson:"strength,omitempty"`
	Alternate       string `bson:"alternate,omitempty"`
	MaxVariable     string `bson:"maxVariable,omitempty"`
	Normalization   bool   `bson:"normalization,omitempty"`
	CaseLevel       bool   `bson:"caseLevel,omitempty"`
	NumericOrdering bool   `bson:"numericOrdering,omitempty"`
	Backwards       bool   `bson:"backwards,omitempty"`
}

// outputStages are the aggregation stages that write their result to a
// collection. A pipeline ending in one of these must run on a primary,
// otherwise the caller could observe stale or absent output.
var outputStages = map[string]bool{
	"$out":   true,
	"$merge": true,
}

// hasOutputStage reports whether the final stage of the pipeline is an
// output stage.
func hasOutputStage(pipeline []bson.D) bool {
	if len(pipeline) == 0 {
		return false
	}
	last := pipeline[len(pipeline)-1]
	if len(last) == 0 {
		return false
	}
	return outputStages[last[0].Key]
}

// resolveReadPref merges an explicit per-call read preference with the
// collection default. The explicit value always wins; a pipeline whose
// final stage writes data forces primary regardless of either.
func resolveReadPref(explicit, def *readpref.ReadPref, pipeline []bson.D) *readpref.ReadPref {
	if hasOutputStage(pipeline) {
		return readpref.Primary()
	}
	if explicit != nil {
		return explicit
	}
	if def != nil {
		return def
	}
	return readpref.Primary()
}

// resolveWriteConcern merges an explicit per-call write concern with
// the collection default. The explicit value always wins.
func resolveWriteConcern(explicit, def *writeconcern.WriteConcern) *writeconcern.WriteConcern {
	if explicit != nil {
		return explicit
	}
	return def
}
