// driver.go - Contract with the underlying transport driver

package minimgo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// SelectionPolicy tells the underlying driver which server to pick for
// one command. Write-path commands always carry a primary-only policy;
// read-path commands carry the resolved read preference.
type SelectionPolicy struct {
	ReadPref *readpref.ReadPref
}

// readPolicy builds a selection policy for a read command. A nil read
// preference falls back to primary.
func readPolicy(rp *readpref.ReadPref) SelectionPolicy {
	if rp == nil {
		rp = readpref.Primary()
	}
	return SelectionPolicy{ReadPref: rp}
}

// writePolicy builds the primary-only policy used by writes, index
// management and the findAndModify family.
func writePolicy() SelectionPolicy {
	return SelectionPolicy{ReadPref: readpref.Primary()}
}

// Driver is the underlying transport collaborator. It owns connection
// pooling, topology monitoring, authentication, timeouts and retries;
// this engine only asks it to resolve a policy to a single server for
// one command.
type Driver interface {
	SelectServer(ctx context.Context, policy SelectionPolicy) (Server, error)
}

// Server is a single selected endpoint able to run one command against
// one database.
type Server interface {
	ExecuteCommand(ctx context.Context, db string, cmd bson.D) (Cursor, error)
}

// Cursor is a sequence of response documents. Commands in this engine
// produce exactly one, read verbs carry their batches inside it.
type Cursor interface {
	ToArray(ctx context.Context) ([]bson.Raw, error)
}
