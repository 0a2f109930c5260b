package kv

import "strings"

// Key is a colon-joined path built from atoms. Any atom containing a colon
// is itself split into further atoms before joining, so a key built from
// e.g. ("working", trafficID) where trafficID happens to contain a colon
// still produces a key whose every segment is colon-free — which is what
// lets Index.Keys' single-segment "*" wildcard behave predictably.
type Key []string

// NewKey builds a Key from the given atoms, splitting any atom that
// contains a colon.
func NewKey(atoms ...string) Key {
	k := make(Key, 0, len(atoms))
	return k.Append(atoms...)
}

// Append returns a new Key with the given atoms appended, splitting any
// atom that contains a colon.
func (k Key) Append(atoms ...string) Key {
	out := make(Key, len(k), len(k)+len(atoms))
	copy(out, k)
	for _, a := range atoms {
		if strings.Contains(a, ":") {
			out = append(out, strings.Split(a, ":")...)
		} else {
			out = append(out, a)
		}
	}
	return out
}

// String renders the key as its colon-joined wire form.
func (k Key) String() string {
	return strings.Join(k, ":")
}
