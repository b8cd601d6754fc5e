package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vsxreg/internal/marketplace"
)

// Key identifies one cached request shape.
//
// Every field is written as <len>:<value> so distinct tuples never produce
// the same key, whatever characters the fields contain.
type Key string

const (
	versionKeyPrefix = "ver"
	queryKeyPrefix   = "qry"
)

// VersionKey encodes a single resolved-version lookup. Namespace and
// extension names are case-insensitive and lowercased here.
func VersionKey(namespace, extension, targetPlatform, versionOrAlias string) Key {
	var b strings.Builder
	b.WriteString(versionKeyPrefix)
	writeField(&b, strings.ToLower(namespace))
	writeField(&b, strings.ToLower(extension))
	writeField(&b, targetPlatform)
	writeField(&b, versionOrAlias)
	return Key(b.String())
}

// QueryKey encodes a marketplace query-result entry for one extension.
// Options are encoded through their canonical bitset.
func QueryKey(extensionID int64, targetPlatform string, opts marketplace.Options) Key {
	var b strings.Builder
	b.WriteString(queryKeyPrefix)
	writeField(&b, strconv.FormatInt(extensionID, 10))
	writeField(&b, targetPlatform)
	writeField(&b, fmt.Sprintf("%08x", opts.Flags()))
	return Key(b.String())
}

func writeField(b *strings.Builder, s string) {
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// trackingGroup names the set of query keys materialized for an extension.
func trackingGroup(extensionID int64) string {
	return "ext/" + strconv.FormatInt(extensionID, 10)
}

// KeySet is an unordered set of keys.
type KeySet map[Key]struct{}

func (s KeySet) Add(keys ...Key) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
