// iterator.go - Iteration over decoded response documents

package minimgo

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// Iter walks the documents of a read command's result batch.
type Iter struct {
	docs []bson.Raw
	pos  int
	err  error
}

func newIter(docs []bson.Raw) *Iter {
	return &Iter{docs: docs}
}

// Next decodes the next document into result and reports whether one
// was available. End of iteration is normal and sets no error.
func (it *Iter) Next(result interface{}) bool {
	if it.err != nil || it.pos >= len(it.docs) {
		return false
	}
	doc := it.docs[it.pos]
	it.pos++
	if err := bson.Unmarshal(doc, result); err != nil {
		it.err = err
		return false
	}
	return true
}

// All decodes every remaining document into result, which must be a
// pointer to a slice.
func (it *Iter) All(result interface{}) error {
	ptr := reflect.ValueOf(result)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Slice {
		return invalidArgf("result argument must be a pointer to a slice, got %T", result)
	}
	slice := ptr.Elem()
	slice.SetLen(0)
	elemType := slice.Type().Elem()
	for it.pos < len(it.docs) {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(it.docs[it.pos], elem.Interface()); err != nil {
			it.err = err
			return err
		}
		it.pos++
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return it.err
}

// Err returns the first decode error encountered, if any.
func (it *Iter) Err() error { return it.err }

// Close releases the iterator. The whole batch is already in memory so
// this only reports any pending error.
func (it *Iter) Close() error { return it.err }
