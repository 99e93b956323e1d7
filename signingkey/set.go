package signingkey

import (
	"bytes"

	"github.com/status-im/signingkeychain-go/derivationpath"
)

// Set is an append only, insertion ordered collection of keys without
// duplicates by UniqueKey. It is not safe for concurrent use; the owner
// serializes access.
type Set struct {
	keys  []SigningKey
	index map[string]int
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Add appends k unless a key with the same UniqueKey is present. It returns
// the position of k in the set and whether it was added.
func (s *Set) Add(k SigningKey) (int, bool) {
	if i, ok := s.index[k.UniqueKey()]; ok {
		return i, false
	}

	s.keys = append(s.keys, k)
	s.index[k.UniqueKey()] = len(s.keys) - 1

	return len(s.keys) - 1, true
}

func (s *Set) Len() int {
	return len(s.keys)
}

func (s *Set) At(i int) SigningKey {
	return s.keys[i]
}

// All returns a copy of the keys in insertion order.
func (s *Set) All() []SigningKey {
	return append([]SigningKey(nil), s.keys...)
}

// Index returns the position of k, or -1.
func (s *Set) Index(k SigningKey) int {
	if i, ok := s.index[k.UniqueKey()]; ok {
		return i
	}

	return -1
}

func (s *Set) Contains(k SigningKey) bool {
	return s.Index(k) >= 0
}

// ByPath returns the HD key at path of the given kind.
func (s *Set) ByPath(kind Kind, path derivationpath.Path) (SigningKey, bool) {
	for _, k := range s.keys {
		if hd, ok := AsHD(k.Type()); ok && hd.Kind == kind && hd.Path.Equal(path) {
			return k, true
		}
	}

	return nil, false
}

// ByPublicKey looks a key up by its compressed public key.
func (s *Set) ByPublicKey(pubKey []byte) (SigningKey, bool) {
	for _, k := range s.keys {
		if bytes.Equal(k.PublicKeyBytes(), pubKey) {
			return k, true
		}
	}

	return nil, false
}

func (s *Set) CountLocalHD() int {
	return s.count(IsLocalHD)
}

func (s *Set) CountHardwareHD() int {
	return s.count(IsHardwareHD)
}

func (s *Set) count(match func(Type) bool) int {
	n := 0
	for _, k := range s.keys {
		if match(k.Type()) {
			n++
		}
	}

	return n
}
