// namespace.go - Database/collection namespace pair

package minimgo

import "strings"

// Namespace identifies a collection as a (database, collection) name pair.
// A Namespace is validated once at construction and immutable afterwards.
type Namespace struct {
	db   string
	coll string
}

// NewNamespace builds a Namespace from database and collection names.
// Neither may be empty, and the database name may not contain '.' or ' '.
func NewNamespace(db, coll string) (Namespace, error) {
	if db == "" {
		return Namespace{}, invalidArgf("database name must not be empty")
	}
	if coll == "" {
		return Namespace{}, invalidArgf("collection name must not be empty")
	}
	if strings.ContainsAny(db, ". ") {
		return Namespace{}, invalidArgf("database name %q must not contain '.' or ' '", db)
	}
	return Namespace{db: db, coll: coll}, nil
}

// ParseNamespace splits a full "db.coll" name on its first dot and
// validates the two halves.
func ParseNamespace(fullName string) (Namespace, error) {
	dot := strings.Index(fullName, ".")
	if dot == -1 {
		return Namespace{}, invalidArgf("namespace %q must contain a '.'", fullName)
	}
	return NewNamespace(fullName[:dot], fullName[dot+1:])
}

// DB returns the database name.
func (ns Namespace) DB() string { return ns.db }

// Collection returns the collection name.
func (ns Namespace) Collection() string { return ns.coll }

// FullName returns the namespace as "db.coll".
func (ns Namespace) FullName() string { return ns.db + "." + ns.coll }
