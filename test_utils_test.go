package minimgo_test

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/globalsign/minimgo"
)

// newTestClient builds a client over a fresh in-memory deployment.
func newTestClient(t *testing.T) (*minimgo.Client, *minimgo.MemDriver) {
	t.Helper()
	drv := minimgo.NewMemDriver()
	client, err := minimgo.NewClient(drv, &minimgo.Config{Database: "minimgo_test"})
	AssertNoError(t, err, "NewClient")
	return client, drv
}

// newTestColl builds a collection handle on a fresh in-memory deployment.
func newTestColl(t *testing.T, name string) (*minimgo.Collection, *minimgo.MemDriver) {
	t.Helper()
	client, drv := newTestClient(t)
	coll, err := client.DB("").C(name)
	AssertNoError(t, err, "open collection")
	return coll, drv
}

// seed inserts the given documents and fails the test on error.
func seed(t *testing.T, coll *minimgo.Collection, docs ...interface{}) {
	t.Helper()
	_, err := coll.InsertMany(context.Background(), docs)
	AssertNoError(t, err, "seed documents")
}

// readAll runs an unfiltered sorted find and decodes every document.
func readAll(t *testing.T, coll *minimgo.Collection, sort interface{}) []bson.M {
	t.Helper()
	it, err := coll.Find(context.Background(), bson.M{}, &minimgo.FindOptions{Sort: sort})
	AssertNoError(t, err, "read collection")
	var out []bson.M
	AssertNoError(t, it.All(&out), "decode collection")
	return out
}

// AssertError checks if an error occurred when one was expected
func AssertError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error but got none: %s", message)
	}
}

// AssertNoError checks if no error occurred when none was expected
func AssertNoError(t *testing.T, err error, message string) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %s - %v", message, err)
	}
}

// AssertEqual checks if two values are equal, treating the integer and
// floating bson number types as one numeric domain.
func AssertEqual(t *testing.T, expected, actual interface{}, message string) {
	t.Helper()
	if ef, ok := asTestFloat(expected); ok {
		if af, ok := asTestFloat(actual); ok {
			if ef != af {
				t.Fatalf("%s - Expected: %v, Got: %v", message, expected, actual)
			}
			return
		}
	}
	if expected != actual {
		t.Fatalf("%s - Expected: %v, Got: %v", message, expected, actual)
	}
}

func asTestFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// docField extracts a top-level field from a raw response document,
// failing the test when it is absent.
func docField(t *testing.T, raw bson.Raw, key string) bson.RawValue {
	t.Helper()
	v, err := raw.LookupErr(key)
	if err != nil {
		t.Fatalf("document %v has no field %q", raw, key)
	}
	return v
}
