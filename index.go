// index.go - Index management view

package minimgo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// IndexModel describes one index to create. Keys is the field→order/
// type document and is required; an empty Name gets the server-default
// generated name.
type IndexModel struct {
	Keys          interface{}
	Name          string
	Unique        bool
	Sparse        bool
	Background    bool
	ExpireAfter   time.Duration
	PartialFilter interface{}
}

// IndexView groups the index operations of one collection.
type IndexView struct {
	coll *Collection
}

// Indexes returns the collection's index view.
func (c *Collection) Indexes() IndexView {
	return IndexView{coll: c}
}

// indexDocument renders the model as a createIndexes array entry and
// returns the effective index name.
func indexDocument(model IndexModel) (bson.D, string, error) {
	keys, err := toDocument(model.Keys)
	if err != nil {
		return nil, "", err
	}
	if len(keys) == 0 {
		return nil, "", invalidArgf("index model must contain a non-empty key document")
	}
	name := model.Name
	if name == "" {
		name, err = generateIndexName(keys)
		if err != nil {
			return nil, "", err
		}
	}
	doc := bson.D{
		{Key: "key", Value: keys},
		{Key: "name", Value: name},
	}
	if model.Unique {
		doc = append(doc, bson.E{Key: "unique", Value: true})
	}
	if model.Sparse {
		doc = append(doc, bson.E{Key: "sparse", Value: true})
	}
	if model.Background {
		doc = append(doc, bson.E{Key: "background", Value: true})
	}
	if model.ExpireAfter > 0 {
		doc = append(doc, bson.E{Key: "expireAfterSeconds", Value: int32(model.ExpireAfter / time.Second)})
	}
	if model.PartialFilter != nil {
		pf, err := toDocument(model.PartialFilter)
		if err != nil {
			return nil, "", err
		}
		doc = append(doc, bson.E{Key: "partialFilterExpression", Value: pf})
	}
	return doc, name, nil
}

// CreateOne creates a single index and returns its effective name.
func (iv IndexView) CreateOne(ctx context.Context, model IndexModel) (string, error) {
	names, err := iv.CreateMany(ctx, []IndexModel{model})
	if err != nil {
		return "", err
	}
	return names[0], nil
}

// CreateMany creates the given indexes in one command and returns
// their effective names in model order.
func (iv IndexView) CreateMany(ctx context.Context, models []IndexModel) ([]string, error) {
	if len(models) == 0 {
		return nil, invalidArgf("createIndexes requires at least one index model")
	}
	docs := make([]bson.D, 0, len(models))
	names := make([]string, 0, len(models))
	for _, m := range models {
		doc, name, err := indexDocument(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		names = append(names, name)
	}
	c := iv.coll
	cmd := buildCreateIndexes(c.ns, docs, resolveWriteConcern(nil, c.wc))
	if _, err := execute(ctx, c.drv, c.mon, c.ns, "createIndexes", cmd, writePolicy()); err != nil {
		return nil, err
	}
	return names, nil
}

// DropOne drops the index with the given name. The "*" wildcard is
// reserved for DropAll and rejected here.
func (iv IndexView) DropOne(ctx context.Context, name string) (bson.Raw, error) {
	if name == "" {
		return nil, invalidArgf("index name must not be empty")
	}
	if name == "*" {
		return nil, ErrMultipleIndexDrop
	}
	return iv.drop(ctx, name)
}

// DropAll drops every index of the collection except the _id index.
func (iv IndexView) DropAll(ctx context.Context) (bson.Raw, error) {
	return iv.drop(ctx, "*")
}

func (iv IndexView) drop(ctx context.Context, index string) (bson.Raw, error) {
	c := iv.coll
	cmd := buildDropIndexes(c.ns, index, resolveWriteConcern(nil, c.wc))
	return execute(ctx, c.drv, c.mon, c.ns, "dropIndexes", cmd, writePolicy())
}

// List returns an iterator over the collection's index documents.
func (iv IndexView) List(ctx context.Context) (*Iter, error) {
	c := iv.coll
	cmd := buildListIndexes(c.ns)
	res, err := execute(ctx, c.drv, c.mon, c.ns, "listIndexes", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	docs, err := firstBatchDocuments(res)
	if err != nil {
		return nil, err
	}
	return newIter(docs), nil
}
