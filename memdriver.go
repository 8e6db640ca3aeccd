// memdriver.go - In-memory implementation of the driver contract
//
// MemDriver interprets the engine's command documents against process
// memory: a single-node stand-in for a real deployment, intended for
// tests of code built on this package. Field paths in filters, updates,
// sorts and projections are matched at the top level only.

package minimgo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemDriver is an in-memory Driver. The zero value is not usable; call
// NewMemDriver. All commands run under one mutex, which also gives each
// command the single-document atomicity a real server provides.
type MemDriver struct {
	mu   sync.Mutex
	dbs  map[string]*memDatabase
	last SelectionPolicy
}

type memDatabase struct {
	name  string
	colls map[string]*memCollection
}

type memCollection struct {
	docs    []bson.D
	indexes []bson.D
}

// NewMemDriver returns an empty in-memory deployment.
func NewMemDriver() *MemDriver {
	return &MemDriver{dbs: make(map[string]*memDatabase)}
}

// SelectServer records the policy and returns the single server.
func (d *MemDriver) SelectServer(ctx context.Context, policy SelectionPolicy) (Server, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = policy
	return &memServer{d: d}, nil
}

// LastPolicy returns the selection policy of the most recent
// SelectServer call. Test hook.
func (d *MemDriver) LastPolicy() SelectionPolicy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *MemDriver) database(name string) *memDatabase {
	db, ok := d.dbs[name]
	if !ok {
		db = &memDatabase{name: name, colls: make(map[string]*memCollection)}
		d.dbs[name] = db
	}
	return db
}

func newMemCollection() *memCollection {
	return &memCollection{
		indexes: []bson.D{{
			{Key: "v", Value: int32(2)},
			{Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}},
			{Key: "name", Value: "_id_"},
		}},
	}
}

func (db *memDatabase) coll(name string) *memCollection {
	c, ok := db.colls[name]
	if !ok {
		c = newMemCollection()
		db.colls[name] = c
	}
	return c
}

func (db *memDatabase) lookup(name string) (*memCollection, bool) {
	c, ok := db.colls[name]
	return c, ok
}

type memServer struct {
	d *MemDriver
}

type memCursor struct {
	docs []bson.Raw
}

func (c *memCursor) ToArray(ctx context.Context) ([]bson.Raw, error) {
	return c.docs, nil
}

// ExecuteCommand routes one command document to its handler and wraps
// the response document in a single-element cursor.
func (s *memServer) ExecuteCommand(ctx context.Context, dbName string, cmd bson.D) (Cursor, error) {
	if len(cmd) == 0 {
		return nil, errors.New("empty command document")
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	db := s.d.database(dbName)
	var resp bson.D
	var err error
	switch cmd[0].Key {
	case "insert":
		resp = db.runInsert(cmd)
	case "find":
		resp = db.runFind(cmd)
	case "update":
		resp = db.runUpdate(cmd)
	case "delete":
		resp = db.runDelete(cmd)
	case "findAndModify":
		resp = db.runFindAndModify(cmd)
	case "count":
		resp = db.runCount(cmd)
	case "distinct":
		resp = db.runDistinct(cmd)
	case "aggregate":
		resp = db.runAggregate(cmd)
	case "drop":
		resp, err = db.runDrop(cmd)
	case "createIndexes":
		resp = db.runCreateIndexes(cmd)
	case "dropIndexes":
		resp = db.runDropIndexes(cmd)
	case "listIndexes":
		resp = db.runListIndexes(cmd)
	case "ping":
		resp = bson.D{{Key: "ok", Value: 1.0}}
	default:
		resp = errResp(59, fmt.Sprintf("no such command: '%s'", cmd[0].Key))
	}
	if err != nil {
		return nil, err
	}
	raw, err := bson.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &memCursor{docs: []bson.Raw{raw}}, nil
}

// ---------------------------- responses ----------------------------

func errResp(code int32, msg string) bson.D {
	return bson.D{
		{Key: "ok", Value: 0.0},
		{Key: "errmsg", Value: msg},
		{Key: "code", Value: code},
	}
}

func cursorResp(ns string, docs []bson.D) bson.D {
	batch := make(bson.A, len(docs))
	for i := range docs {
		batch[i] = docs[i]
	}
	return bson.D{
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: ns},
			{Key: "firstBatch", Value: batch},
		}},
		{Key: "ok", Value: 1.0},
	}
}

// --------------------------- cmd helpers ---------------------------

func cmdValue(cmd bson.D, key string) (interface{}, bool) {
	for _, e := range cmd {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func cmdString(cmd bson.D, key string) string {
	if v, ok := cmdValue(cmd, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func cmdDoc(cmd bson.D, key string) bson.D {
	if v, ok := cmdValue(cmd, key); ok {
		if d, ok := v.(bson.D); ok {
			return d
		}
	}
	return nil
}

func cmdArray(cmd bson.D, key string) bson.A {
	if v, ok := cmdValue(cmd, key); ok {
		if a, ok := v.(bson.A); ok {
			return a
		}
	}
	return nil
}

func cmdBool(cmd bson.D, key string) bool {
	if v, ok := cmdValue(cmd, key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func cmdInt(cmd bson.D, key string) int64 {
	if v, ok := cmdValue(cmd, key); ok {
		if n, ok := asInt64(v); ok {
			return n
		}
	}
	return 0
}

// --------------------------- value helpers ---------------------------

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
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

func truthy(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return false
}

// compareValues orders two bson values of comparable types. The second
// return is false when the values cannot be ordered.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case bv:
			return -1, true
		default:
			return 1, true
		}
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// --------------------------- doc helpers ---------------------------

// cloneDoc deep-copies a document through the bson codec so stored
// documents never alias caller memory.
func cloneDoc(doc bson.D) bson.D {
	data, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var out bson.D
	if err := bson.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

func fieldValue(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func withField(doc bson.D, key string, val interface{}) bson.D {
	for i, e := range doc {
		if e.Key == key {
			out := append(bson.D(nil), doc...)
			out[i].Value = val
			return out
		}
	}
	return append(append(bson.D(nil), doc...), bson.E{Key: key, Value: val})
}

func withoutField(doc bson.D, key string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func docID(doc bson.D) interface{} {
	id, _ := fieldValue(doc, "_id")
	return id
}

// ---------------------------- matching ----------------------------

// operatorDoc reports whether a filter value is a comparison-operator
// document (every key "$"-prefixed).
func operatorDoc(v interface{}) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func matchesFilter(doc bson.D, filter bson.D) bool {
	for _, cond := range filter {
		switch cond.Key {
		case "$and":
			subs, ok := cond.Value.(bson.A)
			if !ok {
				return false
			}
			for _, sub := range subs {
				sf, ok := sub.(bson.D)
				if !ok || !matchesFilter(doc, sf) {
					return false
				}
			}
		case "$or":
			subs, ok := cond.Value.(bson.A)
			if !ok {
				return false
			}
			matched := false
			for _, sub := range subs {
				if sf, ok := sub.(bson.D); ok && matchesFilter(doc, sf) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$nor":
			subs, ok := cond.Value.(bson.A)
			if !ok {
				return false
			}
			for _, sub := range subs {
				if sf, ok := sub.(bson.D); ok && matchesFilter(doc, sf) {
					return false
				}
			}
		default:
			val, exists := fieldValue(doc, cond.Key)
			if ops, ok := operatorDoc(cond.Value); ok {
				for _, op := range ops {
					if !applyComparison(val, exists, op.Key, op.Value) {
						return false
					}
				}
			} else if !exists || !valuesEqual(val, cond.Value) {
				return false
			}
		}
	}
	return true
}

func applyComparison(val interface{}, exists bool, op string, arg interface{}) bool {
	switch op {
	case "$eq":
		return exists && valuesEqual(val, arg)
	case "$ne":
		return !(exists && valuesEqual(val, arg))
	case "$gt":
		c, ok := compareValues(val, arg)
		return exists && ok && c > 0
	case "$gte":
		c, ok := compareValues(val, arg)
		return exists && ok && c >= 0
	case "$lt":
		c, ok := compareValues(val, arg)
		return exists && ok && c < 0
	case "$lte":
		c, ok := compareValues(val, arg)
		return exists && ok && c <= 0
	case "$in":
		arr, ok := arg.(bson.A)
		if !ok || !exists {
			return false
		}
		for _, item := range arr {
			if valuesEqual(val, item) {
				return true
			}
		}
		return false
	case "$nin":
		arr, ok := arg.(bson.A)
		if !ok {
			return false
		}
		if !exists {
			return true
		}
		for _, item := range arr {
			if valuesEqual(val, item) {
				return false
			}
		}
		return true
	case "$exists":
		return truthy(arg) == exists
	default:
		return false
	}
}

// ----------------------------- updates -----------------------------

func addNumbers(a, b interface{}) (interface{}, bool) {
	if ai, aok := a.(int32); aok {
		if bi, bok := b.(int32); bok {
			return ai + bi, true
		}
	}
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if !aok || !bok {
		return nil, false
	}
	_, aFloat := a.(float64)
	_, bFloat := b.(float64)
	if aFloat || bFloat {
		return fa + fb, true
	}
	return int64(fa) + int64(fb), true
}

func applyUpdateOps(doc bson.D, update bson.D) (bson.D, error) {
	out := cloneDoc(doc)
	for _, op := range update {
		fields, ok := op.Value.(bson.D)
		if !ok {
			return nil, fmt.Errorf("modifier %s requires a document argument", op.Key)
		}
		switch op.Key {
		case "$set":
			for _, f := range fields {
				out = withField(out, f.Key, f.Value)
			}
		case "$unset":
			for _, f := range fields {
				out = withoutField(out, f.Key)
			}
		case "$inc":
			for _, f := range fields {
				cur, exists := fieldValue(out, f.Key)
				if !exists {
					out = withField(out, f.Key, f.Value)
					continue
				}
				sum, ok := addNumbers(cur, f.Value)
				if !ok {
					return nil, fmt.Errorf("cannot apply $inc to field %s of non-numeric type", f.Key)
				}
				out = withField(out, f.Key, sum)
			}
		case "$push":
			for _, f := range fields {
				cur, exists := fieldValue(out, f.Key)
				if !exists {
					out = withField(out, f.Key, bson.A{f.Value})
					continue
				}
				arr, ok := cur.(bson.A)
				if !ok {
					return nil, fmt.Errorf("cannot apply $push to non-array field %s", f.Key)
				}
				out = withField(out, f.Key, append(append(bson.A(nil), arr...), f.Value))
			}
		default:
			return nil, fmt.Errorf("unknown modifier: %s", op.Key)
		}
	}
	return out, nil
}

func applyReplacement(old bson.D, repl bson.D) bson.D {
	out := bson.D{}
	if id, ok := fieldValue(old, "_id"); ok {
		out = append(out, bson.E{Key: "_id", Value: id})
	}
	for _, e := range repl {
		if e.Key == "_id" {
			continue
		}
		out = append(out, e)
	}
	return cloneDoc(out)
}

// synthesizeUpsert builds the document an upsert inserts when nothing
// matched: the filter's equality fields with the modification applied.
func synthesizeUpsert(q, u bson.D, isReplacement bool) (bson.D, error) {
	base := bson.D{}
	for _, cond := range q {
		if strings.HasPrefix(cond.Key, "$") {
			continue
		}
		if _, isOp := operatorDoc(cond.Value); isOp {
			continue
		}
		base = append(base, cond)
	}
	var doc bson.D
	if isReplacement {
		doc = cloneDoc(u)
		if _, has := fieldValue(doc, "_id"); !has {
			if id, ok := fieldValue(base, "_id"); ok {
				doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
			}
		}
	} else {
		var err error
		doc, err = applyUpdateOps(base, u)
		if err != nil {
			return nil, err
		}
	}
	if _, has := fieldValue(doc, "_id"); !has {
		doc = append(bson.D{{Key: "_id", Value: primitive.NewObjectID()}}, doc...)
	}
	return doc, nil
}

// ------------------------ sort and projection ------------------------

func sortDocuments(docs []bson.D, spec bson.D) []bson.D {
	out := append([]bson.D(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range spec {
			av, _ := fieldValue(out[i], key.Key)
			bv, _ := fieldValue(out[j], key.Key)
			c, ok := compareValues(av, bv)
			if !ok || c == 0 {
				continue
			}
			if order, _ := asFloat(key.Value); order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func applyProjection(doc bson.D, proj bson.D) bson.D {
	if len(proj) == 0 {
		return cloneDoc(doc)
	}
	inclusion := false
	for _, e := range proj {
		if e.Key != "_id" && truthy(e.Value) {
			inclusion = true
		}
	}
	out := bson.D{}
	if inclusion {
		includeID := true
		if v, ok := fieldValue(proj, "_id"); ok && !truthy(v) {
			includeID = false
		}
		for _, e := range doc {
			if e.Key == "_id" {
				if includeID {
					out = append(out, e)
				}
				continue
			}
			if v, ok := fieldValue(proj, e.Key); ok && truthy(v) {
				out = append(out, e)
			}
		}
	} else {
		for _, e := range doc {
			if v, ok := fieldValue(proj, e.Key); ok && !truthy(v) {
				continue
			}
			out = append(out, e)
		}
	}
	return cloneDoc(out)
}

// ---------------------------- handlers ----------------------------

func (db *memDatabase) runInsert(cmd bson.D) bson.D {
	coll := db.coll(cmdString(cmd, cmd[0].Key))
	n := 0
	for _, dv := range cmdArray(cmd, "documents") {
		doc, ok := dv.(bson.D)
		if !ok {
			return errResp(2, "insert documents entry is not a document")
		}
		doc = cloneDoc(doc)
		if _, has := fieldValue(doc, "_id"); !has {
			doc = append(bson.D{{Key: "_id", Value: primitive.NewObjectID()}}, doc...)
		}
		id := docID(doc)
		for _, existing := range coll.docs {
			if valuesEqual(docID(existing), id) {
				return errResp(11000, fmt.Sprintf("E11000 duplicate key error collection: %s.%s", db.name, cmdString(cmd, "insert")))
			}
		}
		coll.docs = append(coll.docs, doc)
		n++
	}
	return bson.D{{Key: "n", Value: int32(n)}, {Key: "ok", Value: 1.0}}
}

func (db *memDatabase) matching(collName string, filter bson.D) []bson.D {
	coll, ok := db.lookup(collName)
	if !ok {
		return nil
	}
	var out []bson.D
	for _, doc := range coll.docs {
		if matchesFilter(doc, filter) {
			out = append(out, doc)
		}
	}
	return out
}

func (db *memDatabase) runFind(cmd bson.D) bson.D {
	collName := cmdString(cmd, "find")
	docs := db.matching(collName, cmdDoc(cmd, "filter"))
	if s := cmdDoc(cmd, "sort"); s != nil {
		docs = sortDocuments(docs, s)
	}
	if skip := cmdInt(cmd, "skip"); skip > 0 {
		if skip >= int64(len(docs)) {
			docs = nil
		} else {
			docs = docs[skip:]
		}
	}
	if limit := cmdInt(cmd, "limit"); limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	proj := cmdDoc(cmd, "projection")
	out := make([]bson.D, 0, len(docs))
	for _, doc := range docs {
		out = append(out, applyProjection(doc, proj))
	}
	return cursorResp(db.name+"."+collName, out)
}

func (db *memDatabase) runUpdate(cmd bson.D) bson.D {
	collName := cmdString(cmd, "update")
	coll := db.coll(collName)
	var n, nModified int32
	var upserted bson.A
	for i, sv := range cmdArray(cmd, "updates") {
		spec, ok := sv.(bson.D)
		if !ok {
			return errResp(2, "updates entry is not a document")
		}
		q := cmdDoc(spec, "q")
		u := cmdDoc(spec, "u")
		multi := cmdBool(spec, "multi")
		upsert := cmdBool(spec, "upsert")
		isReplacement := !hasUpdateOperators(u)

		var matched []int
		for idx, doc := range coll.docs {
			if matchesFilter(doc, q) {
				matched = append(matched, idx)
				if !multi {
					break
				}
			}
		}
		if len(matched) == 0 {
			if !upsert {
				continue
			}
			newDoc, err := synthesizeUpsert(q, u, isReplacement)
			if err != nil {
				return errResp(9, err.Error())
			}
			coll.docs = append(coll.docs, newDoc)
			upserted = append(upserted, bson.D{
				{Key: "index", Value: int32(i)},
				{Key: "_id", Value: docID(newDoc)},
			})
			n++
			continue
		}
		for _, idx := range matched {
			if isReplacement {
				coll.docs[idx] = applyReplacement(coll.docs[idx], u)
			} else {
				updated, err := applyUpdateOps(coll.docs[idx], u)
				if err != nil {
					return errResp(9, err.Error())
				}
				coll.docs[idx] = updated
			}
			n++
			nModified++
		}
	}
	resp := bson.D{{Key: "n", Value: n}, {Key: "nModified", Value: nModified}}
	if len(upserted) > 0 {
		resp = append(resp, bson.E{Key: "upserted", Value: upserted})
	}
	return append(resp, bson.E{Key: "ok", Value: 1.0})
}

func (db *memDatabase) runDelete(cmd bson.D) bson.D {
	collName := cmdString(cmd, "delete")
	coll, ok := db.lookup(collName)
	var n int32
	if !ok {
		return bson.D{{Key: "n", Value: n}, {Key: "ok", Value: 1.0}}
	}
	for _, sv := range cmdArray(cmd, "deletes") {
		spec, ok := sv.(bson.D)
		if !ok {
			return errResp(2, "deletes entry is not a document")
		}
		q := cmdDoc(spec, "q")
		limit := cmdInt(spec, "limit")
		kept := coll.docs[:0]
		var removed int32
		for _, doc := range coll.docs {
			if (limit == 0 || removed < int32(limit)) && matchesFilter(doc, q) {
				removed++
				continue
			}
			kept = append(kept, doc)
		}
		coll.docs = kept
		n += removed
	}
	return bson.D{{Key: "n", Value: n}, {Key: "ok", Value: 1.0}}
}

func (db *memDatabase) runFindAndModify(cmd bson.D) bson.D {
	collName := cmdString(cmd, "findAndModify")
	query := cmdDoc(cmd, "query")
	sortSpec := cmdDoc(cmd, "sort")
	fields := cmdDoc(cmd, "fields")
	remove := cmdBool(cmd, "remove")
	retNew := cmdBool(cmd, "new")
	upsert := cmdBool(cmd, "upsert")
	update := cmdDoc(cmd, "update")

	coll, exists := db.lookup(collName)
	type entry struct {
		idx int
		doc bson.D
	}
	var entries []entry
	if exists {
		for idx, doc := range coll.docs {
			if matchesFilter(doc, query) {
				entries = append(entries, entry{idx: idx, doc: doc})
			}
		}
	}
	if sortSpec != nil && len(entries) > 1 {
		sort.SliceStable(entries, func(i, j int) bool {
			for _, key := range sortSpec {
				av, _ := fieldValue(entries[i].doc, key.Key)
				bv, _ := fieldValue(entries[j].doc, key.Key)
				c, ok := compareValues(av, bv)
				if !ok || c == 0 {
					continue
				}
				if order, _ := asFloat(key.Value); order < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if len(entries) == 0 {
		if remove || !upsert {
			return bson.D{
				{Key: "lastErrorObject", Value: bson.D{{Key: "n", Value: int32(0)}, {Key: "updatedExisting", Value: false}}},
				{Key: "value", Value: nil},
				{Key: "ok", Value: 1.0},
			}
		}
		newDoc, err := synthesizeUpsert(query, update, !hasUpdateOperators(update))
		if err != nil {
			return errResp(9, err.Error())
		}
		coll = db.coll(collName)
		coll.docs = append(coll.docs, newDoc)
		var value interface{}
		if retNew {
			value = applyProjection(newDoc, fields)
		}
		return bson.D{
			{Key: "lastErrorObject", Value: bson.D{
				{Key: "n", Value: int32(1)},
				{Key: "updatedExisting", Value: false},
				{Key: "upserted", Value: docID(newDoc)},
			}},
			{Key: "value", Value: value},
			{Key: "ok", Value: 1.0},
		}
	}

	target := entries[0]
	pre := cloneDoc(target.doc)
	var value interface{}
	if remove {
		coll.docs = append(coll.docs[:target.idx], coll.docs[target.idx+1:]...)
		value = applyProjection(pre, fields)
	} else {
		var post bson.D
		if hasUpdateOperators(update) {
			var err error
			post, err = applyUpdateOps(target.doc, update)
			if err != nil {
				return errResp(9, err.Error())
			}
		} else {
			post = applyReplacement(target.doc, update)
		}
		coll.docs[target.idx] = post
		if retNew {
			value = applyProjection(post, fields)
		} else {
			value = applyProjection(pre, fields)
		}
	}
	return bson.D{
		{Key: "lastErrorObject", Value: bson.D{
			{Key: "n", Value: int32(1)},
			{Key: "updatedExisting", Value: !remove},
		}},
		{Key: "value", Value: value},
		{Key: "ok", Value: 1.0},
	}
}

func (db *memDatabase) runCount(cmd bson.D) bson.D {
	docs := db.matching(cmdString(cmd, "count"), cmdDoc(cmd, "query"))
	n := int64(len(docs))
	if skip := cmdInt(cmd, "skip"); skip > 0 {
		n -= skip
		if n < 0 {
			n = 0
		}
	}
	if limit := cmdInt(cmd, "limit"); limit > 0 && n > limit {
		n = limit
	}
	return bson.D{{Key: "n", Value: n}, {Key: "ok", Value: 1.0}}
}

func (db *memDatabase) runDistinct(cmd bson.D) bson.D {
	key := cmdString(cmd, "key")
	docs := db.matching(cmdString(cmd, "distinct"), cmdDoc(cmd, "query"))
	values := bson.A{}
	for _, doc := range docs {
		v, ok := fieldValue(doc, key)
		if !ok {
			continue
		}
		seen := false
		for _, existing := range values {
			if valuesEqual(existing, v) {
				seen = true
				break
			}
		}
		if !seen {
			values = append(values, v)
		}
	}
	return bson.D{{Key: "values", Value: values}, {Key: "ok", Value: 1.0}}
}

// runDrop reports a missing collection as a transport-style error so
// callers exercise the executor's drop-if-exists translation.
func (db *memDatabase) runDrop(cmd bson.D) (bson.D, error) {
	collName := cmdString(cmd, "drop")
	coll, ok := db.lookup(collName)
	if !ok {
		return nil, errors.New(nsNotFound)
	}
	delete(db.colls, collName)
	return bson.D{
		{Key: "ns", Value: db.name + "." + collName},
		{Key: "nIndexesWas", Value: int32(len(coll.indexes))},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (db *memDatabase) runCreateIndexes(cmd bson.D) bson.D {
	coll := db.coll(cmdString(cmd, "createIndexes"))
	before := int32(len(coll.indexes))
	for _, iv := range cmdArray(cmd, "indexes") {
		idx, ok := iv.(bson.D)
		if !ok {
			return errResp(2, "indexes entry is not a document")
		}
		name, _ := fieldValue(idx, "name")
		exists := false
		for _, existing := range coll.indexes {
			if en, _ := fieldValue(existing, "name"); valuesEqual(en, name) {
				exists = true
				break
			}
		}
		if !exists {
			full := append(bson.D{{Key: "v", Value: int32(2)}}, cloneDoc(idx)...)
			coll.indexes = append(coll.indexes, full)
		}
	}
	return bson.D{
		{Key: "numIndexesBefore", Value: before},
		{Key: "numIndexesAfter", Value: int32(len(coll.indexes))},
		{Key: "ok", Value: 1.0},
	}
}

func (db *memDatabase) runDropIndexes(cmd bson.D) bson.D {
	collName := cmdString(cmd, "dropIndexes")
	coll, ok := db.lookup(collName)
	if !ok {
		return errResp(26, nsNotFound)
	}
	was := int32(len(coll.indexes))
	index := cmdString(cmd, "index")
	if index == "*" {
		kept := coll.indexes[:0]
		for _, idx := range coll.indexes {
			if n, _ := fieldValue(idx, "name"); valuesEqual(n, "_id_") {
				kept = append(kept, idx)
			}
		}
		coll.indexes = kept
		return bson.D{{Key: "nIndexesWas", Value: was}, {Key: "ok", Value: 1.0}}
	}
	for i, idx := range coll.indexes {
		if n, _ := fieldValue(idx, "name"); valuesEqual(n, index) {
			coll.indexes = append(coll.indexes[:i], coll.indexes[i+1:]...)
			return bson.D{{Key: "nIndexesWas", Value: was}, {Key: "ok", Value: 1.0}}
		}
	}
	return errResp(27, fmt.Sprintf("index not found with name [%s]", index))
}

func (db *memDatabase) runListIndexes(cmd bson.D) bson.D {
	collName := cmdString(cmd, "listIndexes")
	coll, ok := db.lookup(collName)
	if !ok {
		return errResp(26, fmt.Sprintf("ns does not exist: %s.%s", db.name, collName))
	}
	return cursorResp(db.name+"."+collName, coll.indexes)
}

func (db *memDatabase) runAggregate(cmd bson.D) bson.D {
	collName := cmdString(cmd, "aggregate")
	var docs []bson.D
	if coll, ok := db.lookup(collName); ok {
		docs = append(docs, coll.docs...)
	}
	for _, sv := range cmdArray(cmd, "pipeline") {
		stage, ok := sv.(bson.D)
		if !ok || len(stage) != 1 {
			return errResp(40323, "A pipeline stage specification object must contain exactly one field.")
		}
		op := stage[0]
		switch op.Key {
		case "$match":
			filter, ok := op.Value.(bson.D)
			if !ok {
				return errResp(2, "$match argument must be a document")
			}
			var kept []bson.D
			for _, doc := range docs {
				if matchesFilter(doc, filter) {
					kept = append(kept, doc)
				}
			}
			docs = kept
		case "$sort":
			spec, ok := op.Value.(bson.D)
			if !ok {
				return errResp(2, "$sort argument must be a document")
			}
			docs = sortDocuments(docs, spec)
		case "$skip":
			n, _ := asInt64(op.Value)
			if n >= int64(len(docs)) {
				docs = nil
			} else if n > 0 {
				docs = docs[n:]
			}
		case "$limit":
			n, _ := asInt64(op.Value)
			if n >= 0 && n < int64(len(docs)) {
				docs = docs[:n]
			}
		case "$project":
			proj, ok := op.Value.(bson.D)
			if !ok {
				return errResp(2, "$project argument must be a document")
			}
			out := make([]bson.D, 0, len(docs))
			for _, doc := range docs {
				out = append(out, applyProjection(doc, proj))
			}
			docs = out
		case "$count":
			field, ok := op.Value.(string)
			if !ok || field == "" {
				return errResp(40156, "the count field must be a non-empty string")
			}
			docs = []bson.D{{{Key: field, Value: int32(len(docs))}}}
		case "$out":
			target, ok := op.Value.(string)
			if !ok {
				return errResp(2, "$out argument must be a collection name")
			}
			out := newMemCollection()
			for _, doc := range docs {
				out.docs = append(out.docs, cloneDoc(doc))
			}
			db.colls[target] = out
			docs = nil
		default:
			return errResp(40324, fmt.Sprintf("Unrecognized pipeline stage name: '%s'", op.Key))
		}
	}
	return cursorResp(db.name+"."+collName, docs)
}
