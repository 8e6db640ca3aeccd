package minimgo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMatchesFilter(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "n", Value: int32(10)},
		{Key: "name", Value: "alice"},
	}
	cases := []struct {
		filter bson.D
		want   bool
	}{
		{bson.D{}, true},
		{bson.D{{Key: "n", Value: int32(10)}}, true},
		// Cross-type numeric equality.
		{bson.D{{Key: "n", Value: int64(10)}}, true},
		{bson.D{{Key: "n", Value: 10.0}}, true},
		{bson.D{{Key: "n", Value: int32(11)}}, false},
		{bson.D{{Key: "missing", Value: int32(1)}}, false},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: int32(5)}}}}, true},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: int32(10)}}}}, false},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: int32(10)}, {Key: "$lt", Value: int32(20)}}}}, true},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$ne", Value: int32(5)}}}}, true},
		{bson.D{{Key: "missing", Value: bson.D{{Key: "$ne", Value: int32(5)}}}}, true},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$in", Value: bson.A{int32(9), int32(10)}}}}}, true},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$nin", Value: bson.A{int32(9), int32(10)}}}}}, false},
		{bson.D{{Key: "missing", Value: bson.D{{Key: "$exists", Value: false}}}}, true},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$exists", Value: true}}}}, true},
		{bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "n", Value: int32(99)}},
			bson.D{{Key: "name", Value: "alice"}},
		}}}, true},
		{bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "n", Value: int32(10)}},
			bson.D{{Key: "name", Value: "bob"}},
		}}}, false},
		{bson.D{{Key: "$nor", Value: bson.A{
			bson.D{{Key: "n", Value: int32(99)}},
		}}}, true},
	}
	for _, c := range cases {
		if got := matchesFilter(doc, c.filter); got != c.want {
			t.Fatalf("matchesFilter(%v) = %v, want %v", c.filter, got, c.want)
		}
	}
}

func TestApplyUpdateOps(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "n", Value: int32(10)},
		{Key: "tags", Value: bson.A{"a"}},
	}

	out, err := applyUpdateOps(doc, bson.D{
		{Key: "$set", Value: bson.D{{Key: "name", Value: "x"}}},
		{Key: "$inc", Value: bson.D{{Key: "n", Value: int32(5)}}},
		{Key: "$push", Value: bson.D{{Key: "tags", Value: "b"}}},
		{Key: "$unset", Value: bson.D{{Key: "_id", Value: int32(1)}}},
	})
	if err != nil {
		t.Fatalf("applyUpdateOps: %v", err)
	}
	if v, _ := fieldValue(out, "n"); v != int32(15) {
		t.Fatalf("n = %v, want 15", v)
	}
	if v, _ := fieldValue(out, "name"); v != "x" {
		t.Fatalf("name = %v", v)
	}
	if v, _ := fieldValue(out, "tags"); len(v.(bson.A)) != 2 {
		t.Fatalf("tags = %v", v)
	}
	if _, ok := fieldValue(out, "_id"); ok {
		t.Fatalf("_id should be unset: %v", out)
	}
	// The source document is untouched.
	if v, _ := fieldValue(doc, "n"); v != int32(10) {
		t.Fatalf("source document mutated: %v", doc)
	}

	if _, err := applyUpdateOps(doc, bson.D{{Key: "$rename", Value: bson.D{}}}); err == nil {
		t.Fatalf("unknown modifier should fail")
	}
	if _, err := applyUpdateOps(doc, bson.D{{Key: "$inc", Value: bson.D{{Key: "tags", Value: int32(1)}}}}); err == nil {
		t.Fatalf("$inc on an array should fail")
	}
}

func TestSynthesizeUpsert(t *testing.T) {
	doc, err := synthesizeUpsert(
		bson.D{{Key: "_id", Value: int32(4)}, {Key: "n", Value: bson.D{{Key: "$gt", Value: int32(1)}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "x", Value: int32(1)}}}},
		false,
	)
	if err != nil {
		t.Fatalf("synthesizeUpsert: %v", err)
	}
	// Equality fields seed the document; operator conditions do not.
	if v, _ := fieldValue(doc, "_id"); v != int32(4) {
		t.Fatalf("_id = %v, want 4", v)
	}
	if _, ok := fieldValue(doc, "n"); ok {
		t.Fatalf("operator condition must not seed a field: %v", doc)
	}
	if v, _ := fieldValue(doc, "x"); v != int32(1) {
		t.Fatalf("x = %v, want 1", v)
	}

	// Without an _id anywhere, one is generated.
	doc, err = synthesizeUpsert(
		bson.D{{Key: "name", Value: "a"}},
		bson.D{{Key: "name", Value: "b"}},
		true,
	)
	if err != nil {
		t.Fatalf("synthesizeUpsert replacement: %v", err)
	}
	if _, ok := fieldValue(doc, "_id"); !ok {
		t.Fatalf("expected generated _id: %v", doc)
	}
	if v, _ := fieldValue(doc, "name"); v != "b" {
		t.Fatalf("replacement should win: %v", doc)
	}
}

func TestApplyProjection(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "a", Value: int32(2)},
		{Key: "b", Value: int32(3)},
	}

	out := applyProjection(doc, bson.D{{Key: "a", Value: int32(1)}})
	if len(out) != 2 || out[0].Key != "_id" || out[1].Key != "a" {
		t.Fatalf("inclusion keeps _id by default: %v", out)
	}

	out = applyProjection(doc, bson.D{{Key: "a", Value: int32(1)}, {Key: "_id", Value: int32(0)}})
	if len(out) != 1 || out[0].Key != "a" {
		t.Fatalf("_id exclusion in inclusion mode: %v", out)
	}

	out = applyProjection(doc, bson.D{{Key: "b", Value: int32(0)}})
	if len(out) != 2 || out[0].Key != "_id" || out[1].Key != "a" {
		t.Fatalf("exclusion mode: %v", out)
	}

	out = applyProjection(doc, nil)
	if len(out) != 3 {
		t.Fatalf("empty projection keeps everything: %v", out)
	}
}

func TestSortDocuments(t *testing.T) {
	docs := []bson.D{
		{{Key: "a", Value: int32(2)}, {Key: "b", Value: "x"}},
		{{Key: "a", Value: int32(1)}, {Key: "b", Value: "y"}},
		{{Key: "a", Value: int32(2)}, {Key: "b", Value: "w"}},
	}
	out := sortDocuments(docs, bson.D{{Key: "a", Value: int32(-1)}, {Key: "b", Value: int32(1)}})
	if v, _ := fieldValue(out[0], "b"); v != "w" {
		t.Fatalf("unexpected order: %v", out)
	}
	if v, _ := fieldValue(out[2], "a"); v != int32(1) {
		t.Fatalf("unexpected order: %v", out)
	}
	// The input slice keeps its order.
	if v, _ := fieldValue(docs[0], "a"); v != int32(2) {
		t.Fatalf("input mutated: %v", docs)
	}
}
