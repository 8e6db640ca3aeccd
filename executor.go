// executor.go - Uniform command execution and response decoding

package minimgo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// nsNotFound is the transport error message the executor recognizes
// when dropping a collection that does not exist.
const nsNotFound = "ns not found"

// execute runs one command: select a server under the policy, dispatch
// the command document, decode the first response document. One round
// trip, no internal retries; transport errors propagate unchanged.
func execute(ctx context.Context, drv Driver, mon CommandMonitor, ns Namespace, cmdName string, cmd bson.D, policy SelectionPolicy) (bson.Raw, error) {
	srv, err := drv.SelectServer(ctx, policy)
	if err != nil {
		return nil, err
	}
	return executeOn(ctx, srv, mon, ns, cmdName, cmd)
}

// executeOn dispatches a built command to an already selected server.
func executeOn(ctx context.Context, srv Server, mon CommandMonitor, ns Namespace, cmdName string, cmd bson.D) (bson.Raw, error) {
	if mon == nil {
		mon = nopMonitor{}
	}
	ev := CommandStartedEvent{
		OperationID: uuid.NewString(),
		Database:    ns.DB(),
		Namespace:   ns.FullName(),
		CommandName: cmdName,
	}
	start := time.Now()
	mon.Started(ev)

	doc, err := roundTrip(ctx, srv, ns.DB(), cmd)
	if err != nil {
		mon.Failed(CommandFailedEvent{CommandStartedEvent: ev, Duration: time.Since(start), Failure: err.Error()})
		return nil, err
	}
	mon.Succeeded(CommandSucceededEvent{CommandStartedEvent: ev, Duration: time.Since(start)})
	return doc, nil
}

func roundTrip(ctx context.Context, srv Server, db string, cmd bson.D) (bson.Raw, error) {
	cur, err := srv.ExecuteCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	docs, err := cur.ToArray(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &CommandError{Message: "no response document received"}
	}
	doc := docs[0]
	if !responseOK(doc) {
		return nil, &CommandError{Code: responseCode(doc), Message: responseErrmsg(doc)}
	}
	return doc, nil
}

// responseOK reports whether the response's ok field is truthy.
func responseOK(doc bson.Raw) bool {
	v, err := doc.LookupErr("ok")
	if err != nil {
		return false
	}
	switch v.Type {
	case bsontype.Int32:
		return v.Int32() != 0
	case bsontype.Int64:
		return v.Int64() != 0
	case bsontype.Double:
		return v.Double() != 0
	case bsontype.Boolean:
		return v.Boolean()
	default:
		return false
	}
}

// responseErrmsg extracts the server's error message, falling back to
// "Unknown error" when the errmsg field is absent or not a string.
func responseErrmsg(doc bson.Raw) string {
	if s, ok := doc.Lookup("errmsg").StringValueOK(); ok {
		return s
	}
	return unknownErrorMessage
}

func responseCode(doc bson.Raw) int32 {
	if c, ok := doc.Lookup("code").Int32OK(); ok {
		return c
	}
	return 0
}

// findAndModifyValue extracts the pre/post image from a findAndModify
// response. A null or absent value field means no document matched;
// that is an ordinary outcome, not an error.
func findAndModifyValue(doc bson.Raw) (bson.Raw, error) {
	v, err := doc.LookupErr("value")
	if err != nil {
		return nil, nil
	}
	switch v.Type {
	case bsontype.Null:
		return nil, nil
	case bsontype.EmbeddedDocument:
		return v.Document(), nil
	default:
		return nil, &CommandError{Message: "invalid response from server, 'value' field is not a document"}
	}
}

// firstBatchDocuments unpacks the cursor.firstBatch array of a read
// command response.
func firstBatchDocuments(doc bson.Raw) ([]bson.Raw, error) {
	v, err := doc.LookupErr("cursor", "firstBatch")
	if err != nil {
		return nil, &CommandError{Message: "invalid response from server, no cursor.firstBatch field"}
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil, &CommandError{Message: "invalid response from server, cursor.firstBatch is not an array"}
	}
	vals, err := arr.Values()
	if err != nil {
		return nil, err
	}
	docs := make([]bson.Raw, 0, len(vals))
	for _, val := range vals {
		d, ok := val.DocumentOK()
		if !ok {
			return nil, &CommandError{Message: "invalid response from server, cursor batch entry is not a document"}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// syntheticDropResult is returned in place of an error when dropping a
// collection that does not exist: drop is drop-if-exists at this layer.
func syntheticDropResult() bson.Raw {
	raw, err := bson.Marshal(bson.D{
		{Key: "ok", Value: int32(0)},
		{Key: "errmsg", Value: nsNotFound},
	})
	if err != nil {
		panic(err)
	}
	return raw
}
