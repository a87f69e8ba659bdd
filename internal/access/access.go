// Package access implements the file-level ACL model: an ordered list of
// (user, read, write) entries per file, plus an owner who implicitly has
// both rights and cannot be removed. There are no groups and no
// directory-level access files, only a short per-file grant list a client
// edits with ADDACCESS/REMACCESS.
package access

import "scribe.io/errors"

// Entry is one grant on a file: a user and the rights given to them.
type Entry struct {
	User  string
	Read  bool
	Write bool
}

// List is the ordered set of grants on a file. Order is preserved as
// entries are added, so INFO output lists grants in the order they were
// made.
type List struct {
	Owner   string
	entries []Entry
}

// NewList returns a List whose owner has implicit read/write access.
func NewList(owner string) *List {
	return &List{Owner: owner}
}

// indexOf returns the index of user's entry, or -1.
func (l *List) indexOf(user string) int {
	for i, e := range l.entries {
		if e.User == user {
			return i
		}
	}
	return -1
}

// CanRead reports whether user may read the file.
func (l *List) CanRead(user string) bool {
	if user == l.Owner {
		return true
	}
	if i := l.indexOf(user); i >= 0 {
		return l.entries[i].Read
	}
	return false
}

// CanWrite reports whether user may write the file.
func (l *List) CanWrite(user string) bool {
	if user == l.Owner {
		return true
	}
	if i := l.indexOf(user); i >= 0 {
		return l.entries[i].Write
	}
	return false
}

// Grant adds or updates user's rights. Granting to the owner is a no-op:
// the owner's rights are implicit and not represented as an entry.
func (l *List) Grant(user string, read, write bool) {
	if user == l.Owner {
		return
	}
	if i := l.indexOf(user); i >= 0 {
		l.entries[i].Read = read
		l.entries[i].Write = write
		return
	}
	l.entries = append(l.entries, Entry{User: user, Read: read, Write: write})
}

// Revoke removes user's grant entirely. Revoking the owner is rejected:
// the owner can never lose access to their own file.
func (l *List) Revoke(user string) error {
	if user == l.Owner {
		return errors.E(errors.Op("access.Revoke"), errors.User(user), errors.PermissionDenied,
			errors.Str("owner access cannot be revoked"))
	}
	if i := l.indexOf(user); i >= 0 {
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
	return nil
}

// Entries returns the grant list in insertion order, excluding the
// owner's implicit entry.
func (l *List) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Check returns PermissionDenied unless user has at least the requested
// rights. Either of read or write may be false to skip that check.
func Check(l *List, user string, needRead, needWrite bool) error {
	const op = errors.Op("access.Check")
	if needRead && !l.CanRead(user) {
		return errors.E(op, errors.User(user), errors.PermissionDenied, errors.Str("read access denied"))
	}
	if needWrite && !l.CanWrite(user) {
		return errors.E(op, errors.User(user), errors.PermissionDenied, errors.Str("write access denied"))
	}
	return nil
}
