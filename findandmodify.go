// findandmodify.go - The atomic read-modify-write protocol

package minimgo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// findAndModifySpec carries one fully resolved findAndModify call.
type findAndModifySpec struct {
	query  bson.D
	body   bson.D // update operators or replacement; ignored when remove
	remove bool
	new    bool // return the post-image instead of the pre-image
	upsert bool
	sort   bson.D
	fields bson.D
	wc     *writeconcern.WriteConcern
}

func buildFindAndModify(ns Namespace, spec findAndModifySpec) bson.D {
	cmd := bson.D{
		{Key: "findAndModify", Value: ns.Collection()},
		{Key: "query", Value: spec.query},
	}
	if spec.remove {
		cmd = append(cmd, bson.E{Key: "remove", Value: true})
	} else {
		cmd = append(cmd, bson.E{Key: "update", Value: spec.body})
	}
	if spec.new {
		cmd = append(cmd, bson.E{Key: "new", Value: true})
	}
	if spec.upsert {
		cmd = append(cmd, bson.E{Key: "upsert", Value: true})
	}
	if spec.sort != nil {
		cmd = append(cmd, bson.E{Key: "sort", Value: spec.sort})
	}
	if spec.fields != nil {
		cmd = append(cmd, bson.E{Key: "fields", Value: spec.fields})
	}
	return appendWriteConcern(cmd, spec.wc)
}

// runFindAndModify executes the command on a primary and extracts the
// selected image. A nil image with a nil error means no document.
func (c *Collection) runFindAndModify(ctx context.Context, spec findAndModifySpec) (bson.Raw, error) {
	cmd := buildFindAndModify(c.ns, spec)
	res, err := execute(ctx, c.drv, c.mon, c.ns, "findAndModify", cmd, writePolicy())
	if err != nil {
		return nil, err
	}
	return findAndModifyValue(res)
}

// famSortAndFields converts the shared sort/projection options.
func famSortAndFields(sort, projection interface{}) (sortDoc, fieldsDoc bson.D, err error) {
	if sort != nil {
		sortDoc, err = toDocument(sort)
		if err != nil {
			return nil, nil, err
		}
	}
	if projection != nil {
		fieldsDoc, err = toDocument(projection)
		if err != nil {
			return nil, nil, err
		}
	}
	return sortDoc, fieldsDoc, nil
}

// FindOneAndUpdate atomically applies an update-operator document to
// one match and returns its pre- or post-image per the options. A nil
// image means no document matched (and, with ReturnDocument Before, an
// upsert's freshly created document has no pre-image either).
func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update interface{}, opts *FindOneAndUpdateOptions) (bson.Raw, error) {
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
	if opts == nil {
		opts = &FindOneAndUpdateOptions{}
	}
	sort, fields, err := famSortAndFields(opts.Sort, opts.Projection)
	if err != nil {
		return nil, err
	}
	return c.runFindAndModify(ctx, findAndModifySpec{
		query:  q,
		body:   u,
		new:    opts.ReturnDocument == After,
		upsert: opts.Upsert,
		sort:   sort,
		fields: fields,
		wc:     c.wc,
	})
}

// FindOneAndReplace atomically replaces one match with a full
// replacement document and returns its pre- or post-image.
func (c *Collection) FindOneAndReplace(ctx context.Context, filter, replacement interface{}, opts *FindOneAndReplaceOptions) (bson.Raw, error) {
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
	if opts == nil {
		opts = &FindOneAndReplaceOptions{}
	}
	sort, fields, err := famSortAndFields(opts.Sort, opts.Projection)
	if err != nil {
		return nil, err
	}
	return c.runFindAndModify(ctx, findAndModifySpec{
		query:  q,
		body:   u,
		new:    opts.ReturnDocument == After,
		upsert: opts.Upsert,
		sort:   sort,
		fields: fields,
		wc:     c.wc,
	})
}

// FindOneAndDelete atomically removes one match and returns its
// pre-image, nil when nothing matched.
func (c *Collection) FindOneAndDelete(ctx context.Context, filter interface{}, opts *FindOneAndDeleteOptions) (bson.Raw, error) {
	q, err := toDocument(filter)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &FindOneAndDeleteOptions{}
	}
	sort, fields, err := famSortAndFields(opts.Sort, opts.Projection)
	if err != nil {
		return nil, err
	}
	return c.runFindAndModify(ctx, findAndModifySpec{
		query:  q,
		remove: true,
		sort:   sort,
		fields: fields,
		wc:     c.wc,
	})
}
