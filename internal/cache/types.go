package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Identifier is an opaque unique name for a source image. Treated as an
// immutable string; callers are responsible for escaping it when it is
// embedded in paths or URLs outside this package.
type Identifier string

// String returns the identifier's raw string form.
func (id Identifier) String() string {
	return string(id)
}

// MD5Hex returns the lowercase hex-encoded MD5 digest of the identifier,
// used to derive filesystem shard paths and info filenames.
func (id Identifier) MD5Hex() string {
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Operation is a single named, parameterized image transform.
type Operation struct {
	Name   string
	Params map[string]string
}

// OperationList describes a requested variant: the source Identifier plus
// an ordered sequence of Operations and an output format. Its Filename is
// the canonical rendering used both as a cache key component and as the
// on-disk variant filename; two OperationLists are equal iff their
// Filename values are equal.
type OperationList struct {
	id     Identifier
	ops    []Operation
	format string
}

// NewOperationList builds an OperationList for id, applying ops in order
// and producing output in format (e.g. "jpg", "webp").
func NewOperationList(id Identifier, format string, ops ...Operation) OperationList {
	cp := make([]Operation, len(ops))
	copy(cp, ops)
	return OperationList{id: id, ops: cp, format: format}
}

// Identifier returns the underlying source image Identifier.
func (ol OperationList) Identifier() Identifier {
	return ol.id
}

// Format returns the requested output format.
func (ol OperationList) Format() string {
	return ol.format
}

// Filename renders the OperationList as the canonical filename-style
// string that also serves as its equality key: "<md5(id)>", then
// "_<op>" plus ",<key>=<value>" per parameter (keys sorted) for each
// operation in order, then ".<format>".
func (ol OperationList) Filename() string {
	var b strings.Builder
	b.WriteString(ol.id.MD5Hex())
	for _, op := range ol.ops {
		b.WriteByte('_')
		b.WriteString(op.Name)
		if len(op.Params) > 0 {
			keys := sortedKeys(op.Params)
			for _, k := range keys {
				fmt.Fprintf(&b, ",%s=%s", k, op.Params[k])
			}
		}
	}
	if ol.format != "" {
		b.WriteByte('.')
		b.WriteString(ol.format)
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Info is structured metadata describing a source image. It round-trips
// through JSON; SerializedAt must be populated on retrieval if the stored
// value was absent (the read-side timestamp backfill documented for the
// filesystem and heap backends).
type Info struct {
	Identifier   Identifier        `json:"identifier"`
	Format       string            `json:"format"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	SerializedAt *time.Time        `json:"serialized_at,omitempty"`
}

// ToJSON renders the Info as self-describing JSON-shaped text.
func (i Info) ToJSON() ([]byte, error) {
	return json.Marshal(i)
}

// InfoFromJSON parses Info previously produced by ToJSON.
func InfoFromJSON(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// VariantBlob is an opaque byte sequence representing a finished variant
// image, plus the instant it was last modified.
type VariantBlob struct {
	Data         []byte
	LastModified time.Time
}

// StatResult is an out-parameter carrying the last-modified instant of a
// retrieved artifact; callers pass a pointer and the backend fills it in.
type StatResult struct {
	LastModified time.Time
}

// entryKind distinguishes info entries from variant entries in the heap
// backend, since both are stored as byte blobs under the same map.
type entryKind int

const (
	kindInfo entryKind = iota
	kindVariant
)

func (k entryKind) String() string {
	if k == kindInfo {
		return "info"
	}
	return "variant"
}

// cacheKey is the heap backend's lookup key: "id:<identifier>" for infos,
// "op:<filename>" for variants. Two cacheKeys are equal iff their
// canonical rendering is equal, so plain string equality (and use as a Go
// map key) is sufficient.
type cacheKey string

func infoKey(id Identifier) cacheKey {
	return cacheKey("id:" + string(id))
}

func variantKey(ol OperationList) cacheKey {
	return cacheKey("op:" + ol.Filename())
}

// isVariantFor reports whether k is a variant key derived from the given
// "op:<md5(id)>" prefix, mirroring the filesystem backend's shard-filename
// prefix match for the same purpose.
func (k cacheKey) isVariantFor(prefix string) bool {
	return strings.HasPrefix(string(k), prefix)
}

// cacheEntry is the heap backend's unit of storage.
type cacheEntry struct {
	data         []byte
	lastModified time.Time
	lastAccessed time.Time
	kind         entryKind
}
