// session.go - Client and database handles

package minimgo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Client ties an underlying transport driver to explicit policy
// defaults. There is no ambient global state: every default an
// operation reads was supplied here at construction.
type Client struct {
	drv    Driver
	dbName string
	rp     *readpref.ReadPref
	wc     *writeconcern.WriteConcern
	mon    CommandMonitor
}

// NewClient builds a client from a transport driver and a validated
// configuration. A nil config selects the "test" database, primary
// reads and server-default write concern.
func NewClient(drv Driver, cfg *Config) (*Client, error) {
	if drv == nil {
		return nil, invalidArgf("driver must not be nil")
	}
	if cfg == nil {
		cfg = &Config{Database: "test"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rp, err := cfg.readPref()
	if err != nil {
		return nil, err
	}
	return &Client{
		drv:    drv,
		dbName: cfg.Database,
		rp:     rp,
		wc:     cfg.writeConcern(),
		mon:    nopMonitor{},
	}, nil
}

// WithMonitor returns a client whose operations report to the given
// command monitor.
func (m *Client) WithMonitor(mon CommandMonitor) *Client {
	clone := *m
	if mon == nil {
		mon = nopMonitor{}
	}
	clone.mon = mon
	return &clone
}

// DB returns a handle on the named database, or on the client's
// default database when name is empty.
func (m *Client) DB(name string) *Database {
	if name == "" {
		name = m.dbName
	}
	return &Database{client: m, name: name}
}

// Database is a handle on one database of the deployment.
type Database struct {
	client *Client
	name   string
}

// Name returns the database name.
func (db *Database) Name() string { return db.name }

// C returns a collection handle carrying the client's policy defaults.
// Namespace validation happens here, before any operation is built.
func (db *Database) C(name string) (*Collection, error) {
	ns, err := NewNamespace(db.name, name)
	if err != nil {
		return nil, err
	}
	m := db.client
	return &Collection{
		ns:  ns,
		drv: m.drv,
		rp:  m.rp,
		wc:  m.wc,
		mon: m.mon,
	}, nil
}

// Run executes an arbitrary command document against the database on a
// primary and decodes the response into result when non-nil.
func (db *Database) Run(ctx context.Context, cmd interface{}, result interface{}) error {
	doc, err := toDocument(cmd)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		return invalidArgf("command document must not be empty")
	}
	m := db.client
	ns := Namespace{db: db.name, coll: "$cmd"}
	res, err := execute(ctx, m.drv, m.mon, ns, doc[0].Key, doc, writePolicy())
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return bson.Unmarshal(res, result)
}
