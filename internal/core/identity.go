package core

import "strconv"

// Identity is the surrogate key of an entity. It is either a draft (not yet
// persisted, no key) or persisted with an immutable key assigned by storage.
type Identity struct {
	key       int64
	persisted bool
}

// Draft returns the identity of an entity that has not been stored yet.
func Draft() Identity { return Identity{} }

// Persisted returns the identity of a stored entity.
func Persisted(key int64) Identity { return Identity{key: key, persisted: true} }

// Key returns the storage key and whether the identity is persisted.
func (i Identity) Key() (int64, bool) { return i.key, i.persisted }

// Int64 returns the key, or 0 for a draft.
func (i Identity) Int64() int64 { return i.key }

func (i Identity) IsDraft() bool { return !i.persisted }

// Same reports identity equality: both persisted with equal keys. Drafts are
// never the same as anything, including other drafts with identical fields.
func (i Identity) Same(o Identity) bool {
	return i.persisted && o.persisted && i.key == o.key
}

func (i Identity) String() string {
	if !i.persisted {
		return "draft"
	}
	return strconv.FormatInt(i.key, 10)
}
