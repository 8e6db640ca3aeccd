package minimgo_test

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/globalsign/minimgo"
)

func TestInsertAndFind(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()

	wr, err := coll.InsertOne(ctx, bson.M{"name": "alice", "age": 30})
	AssertNoError(t, err, "InsertOne")
	AssertEqual(t, int64(1), wr.Inserted, "inserted count")
	if len(wr.InsertedIDs) != 1 {
		t.Fatalf("expected one inserted id, got %v", wr.InsertedIDs)
	}
	if _, ok := wr.InsertedIDs[0].(primitive.ObjectID); !ok {
		t.Fatalf("expected a generated ObjectID, got %T", wr.InsertedIDs[0])
	}

	var got bson.M
	AssertNoError(t, coll.FindOne(ctx, bson.M{"name": "alice"}, &got, nil), "FindOne")
	AssertEqual(t, "alice", got["name"], "name round trip")
	AssertEqual(t, 30, got["age"], "age round trip")
}

func TestInsertKeepsExplicitID(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()

	wr, err := coll.InsertOne(ctx, bson.M{"_id": 7, "name": "bob"})
	AssertNoError(t, err, "InsertOne")
	AssertEqual(t, 7, wr.InsertedIDs[0], "explicit id preserved")

	// A second insert with the same _id is a server-side failure.
	_, err = coll.InsertOne(ctx, bson.M{"_id": 7})
	var cmdErr *minimgo.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("duplicate _id should yield a CommandError, got %v", err)
	}
	AssertEqual(t, int32(11000), cmdErr.Code, "duplicate key code")
}

func TestInsertManyEmpty(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	_, err := coll.InsertMany(context.Background(), nil)
	if !errors.Is(err, minimgo.ErrInvalidArgument) {
		t.Fatalf("empty insert should be rejected locally, got %v", err)
	}
}

func TestFindOneNotFound(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	var got bson.M
	err := coll.FindOne(context.Background(), bson.M{"name": "nobody"}, &got, nil)
	if !errors.Is(err, minimgo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindSortSkipLimitProjection(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "n": 30, "tag": "c"},
		bson.M{"_id": 2, "n": 10, "tag": "a"},
		bson.M{"_id": 3, "n": 20, "tag": "b"},
		bson.M{"_id": 4, "n": 40, "tag": "d"},
	)

	it, err := coll.Find(ctx, bson.M{}, &minimgo.FindOptions{
		Sort:       bson.M{"n": 1},
		Skip:       1,
		Limit:      2,
		Projection: bson.M{"tag": 1, "_id": 0},
	})
	AssertNoError(t, err, "Find")
	var docs []bson.M
	AssertNoError(t, it.All(&docs), "All")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %v", docs)
	}
	AssertEqual(t, "b", docs[0]["tag"], "first after skip")
	AssertEqual(t, "c", docs[1]["tag"], "second after skip")
	if _, ok := docs[0]["_id"]; ok {
		t.Fatalf("_id should be projected out: %v", docs[0])
	}
	if _, ok := docs[0]["n"]; ok {
		t.Fatalf("n should be projected out: %v", docs[0])
	}
}

func TestFindOperators(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "n": 10},
		bson.M{"_id": 2, "n": 20},
		bson.M{"_id": 3, "n": 30},
	)

	it, err := coll.Find(ctx, bson.M{"n": bson.M{"$gte": 20}}, &minimgo.FindOptions{Sort: bson.M{"n": 1}})
	AssertNoError(t, err, "Find $gte")
	var docs []bson.M
	AssertNoError(t, it.All(&docs), "All")
	if len(docs) != 2 {
		t.Fatalf("$gte 20 should match 2 documents, got %v", docs)
	}

	it, err = coll.Find(ctx, bson.M{"n": bson.M{"$in": []int{10, 30}}}, nil)
	AssertNoError(t, err, "Find $in")
	AssertNoError(t, it.All(&docs), "All")
	if len(docs) != 2 {
		t.Fatalf("$in should match 2 documents, got %v", docs)
	}
}

func TestUpdateOneAndMany(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "n": 1},
		bson.M{"_id": 2, "n": 1},
	)

	wr, err := coll.UpdateOne(ctx, bson.M{"n": 1}, bson.M{"$inc": bson.M{"n": 10}}, nil)
	AssertNoError(t, err, "UpdateOne")
	AssertEqual(t, int64(1), wr.Matched, "matched")
	AssertEqual(t, int64(1), wr.Modified, "modified")

	wr, err = coll.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"seen": true}}, nil)
	AssertNoError(t, err, "UpdateMany")
	AssertEqual(t, int64(2), wr.Matched, "matched all")
	AssertEqual(t, int64(2), wr.Modified, "modified all")

	docs := readAll(t, coll, bson.M{"_id": 1})
	AssertEqual(t, 11, docs[0]["n"], "incremented value")
	AssertEqual(t, true, docs[1]["seen"], "set value")
}

func TestUpdateRejectsReplacementBody(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	_, err := coll.UpdateOne(context.Background(), bson.M{}, bson.M{"n": 5}, nil)
	if !errors.Is(err, minimgo.ErrInvalidArgument) {
		t.Fatalf("replacement body in UpdateOne should be rejected, got %v", err)
	}
	_, err = coll.UpdateOne(context.Background(), bson.M{}, bson.M{"$set": bson.M{"a": 1}, "n": 5}, nil)
	if !errors.Is(err, minimgo.ErrInvalidArgument) {
		t.Fatalf("mixed body should be rejected, got %v", err)
	}
}

func TestUpdateUpsert(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()

	wr, err := coll.UpdateOne(ctx, bson.M{"_id": 9}, bson.M{"$set": bson.M{"n": 1}}, &minimgo.UpdateOptions{Upsert: true})
	AssertNoError(t, err, "upsert")
	AssertEqual(t, int64(0), wr.Matched, "an upsert matches nothing")
	AssertEqual(t, 9, wr.UpsertedID, "upserted id from filter")

	var got bson.M
	AssertNoError(t, coll.FindOne(ctx, bson.M{"_id": 9}, &got, nil), "find upserted")
	AssertEqual(t, 1, got["n"], "upserted field")
}

func TestReplaceOne(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()
	seed(t, coll, bson.M{"_id": 1, "name": "alice", "age": 30})

	wr, err := coll.ReplaceOne(ctx, bson.M{"_id": 1}, bson.M{"name": "alicia"}, nil)
	AssertNoError(t, err, "ReplaceOne")
	AssertEqual(t, int64(1), wr.Matched, "matched")

	var got bson.M
	AssertNoError(t, coll.FindOne(ctx, bson.M{"_id": 1}, &got, nil), "find replaced")
	AssertEqual(t, "alicia", got["name"], "replaced name")
	if _, ok := got["age"]; ok {
		t.Fatalf("replacement should drop unlisted fields: %v", got)
	}
	AssertEqual(t, 1, got["_id"], "_id survives replacement")

	_, err = coll.ReplaceOne(ctx, bson.M{}, bson.M{"$set": bson.M{"a": 1}}, nil)
	if !errors.Is(err, minimgo.ErrInvalidArgument) {
		t.Fatalf("operator body in ReplaceOne should be rejected, got %v", err)
	}
}

func TestDeleteOneAndMany(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "n": 1},
		bson.M{"_id": 2, "n": 1},
		bson.M{"_id": 3, "n": 2},
	)

	wr, err := coll.DeleteOne(ctx, bson.M{"n": 1})
	AssertNoError(t, err, "DeleteOne")
	AssertEqual(t, int64(1), wr.Removed, "removed one")

	wr, err = coll.DeleteMany(ctx, bson.M{})
	AssertNoError(t, err, "DeleteMany")
	AssertEqual(t, int64(2), wr.Removed, "removed the rest")

	n, err := coll.CountDocuments(ctx, bson.M{}, nil)
	AssertNoError(t, err, "CountDocuments")
	AssertEqual(t, int64(0), n, "collection emptied")
}

func TestCountDocuments(t *testing.T) {
	coll, _ := newTestColl(t, "nums")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "n": 1},
		bson.M{"_id": 2, "n": 2},
		bson.M{"_id": 3, "n": 3},
	)

	n, err := coll.CountDocuments(ctx, bson.M{"n": bson.M{"$gt": 1}}, nil)
	AssertNoError(t, err, "filtered count")
	AssertEqual(t, int64(2), n, "filtered count")

	n, err = coll.CountDocuments(ctx, bson.M{}, &minimgo.CountOptions{Skip: 1, Limit: 1})
	AssertNoError(t, err, "skip/limit count")
	AssertEqual(t, int64(1), n, "skip/limit count")
}

func TestDistinct(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "city": "berlin"},
		bson.M{"_id": 2, "city": "berlin"},
		bson.M{"_id": 3, "city": "madrid"},
		bson.M{"_id": 4},
	)

	values, err := coll.Distinct(ctx, "city", bson.M{})
	AssertNoError(t, err, "Distinct")
	if len(values) != 2 {
		t.Fatalf("expected 2 distinct values, got %v", values)
	}

	_, err = coll.Distinct(ctx, "", bson.M{})
	if !errors.Is(err, minimgo.ErrInvalidArgument) {
		t.Fatalf("empty key should be rejected, got %v", err)
	}
}

func TestDropIsIdempotent(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()
	seed(t, coll, bson.M{"_id": 1})

	res, err := coll.Drop(ctx)
	AssertNoError(t, err, "drop existing")
	okVal, _ := docField(t, res, "ok").AsInt64OK()
	AssertEqual(t, int64(1), okVal, "drop existing ok")

	// Dropping again is not an error; the result document reports it.
	res, err = coll.Drop(ctx)
	AssertNoError(t, err, "drop missing")
	okVal, _ = docField(t, res, "ok").AsInt64OK()
	AssertEqual(t, int64(0), okVal, "drop missing ok")
	errmsg, _ := docField(t, res, "errmsg").StringValueOK()
	AssertEqual(t, "ns not found", errmsg, "drop missing errmsg")

	n, err := coll.CountDocuments(ctx, bson.M{}, nil)
	AssertNoError(t, err, "count after drop")
	AssertEqual(t, int64(0), n, "documents gone")
}

func TestWithReadPreferenceSelectsSecondary(t *testing.T) {
	coll, drv := newTestColl(t, "users")
	ctx := context.Background()

	// Reads follow the handle's preference, writes stay on the primary.
	secondary := coll.WithReadPreference(readpref.Secondary())
	_, err := secondary.Find(ctx, bson.M{}, nil)
	AssertNoError(t, err, "Find")
	if got := drv.LastPolicy().ReadPref.Mode(); got != readpref.SecondaryMode {
		t.Fatalf("find selection mode = %v, want secondary", got)
	}

	_, err = secondary.InsertOne(ctx, bson.M{"_id": 1})
	AssertNoError(t, err, "InsertOne")
	if got := drv.LastPolicy().ReadPref.Mode(); got != readpref.PrimaryMode {
		t.Fatalf("write selection mode = %v, want primary", got)
	}
}

func TestIterNextAndStructDecode(t *testing.T) {
	coll, _ := newTestColl(t, "users")
	ctx := context.Background()
	seed(t, coll,
		bson.M{"_id": 1, "name": "alice"},
		bson.M{"_id": 2, "name": "bob"},
	)

	type user struct {
		ID   int    `bson:"_id"`
		Name string `bson:"name"`
	}
	it, err := coll.Find(ctx, bson.M{}, &minimgo.FindOptions{Sort: bson.M{"_id": 1}})
	AssertNoError(t, err, "Find")
	var u user
	var names []string
	for it.Next(&u) {
		names = append(names, u.Name)
	}
	AssertNoError(t, it.Err(), "iteration error")
	AssertNoError(t, it.Close(), "close")
	if len(names) != 2 || names[0] != "alice" || names[1] != "bob" {
		t.Fatalf("unexpected iteration order: %v", names)
	}

	it, err = coll.Find(ctx, bson.M{}, &minimgo.FindOptions{Sort: bson.M{"_id": -1}})
	AssertNoError(t, err, "Find desc")
	var users []user
	AssertNoError(t, it.All(&users), "All into struct slice")
	if len(users) != 2 || users[0].ID != 2 {
		t.Fatalf("unexpected All result: %v", users)
	}
}
