// Package bucketpath derives object-store locations from object hashes.
// Every reader and writer of an object must agree on its location bit for bit,
// so derivation is a pure function: same hash, same path, always.
package bucketpath

import (
	"path"
	"strings"
)

// Namespace describes where one logical object type lives. Sharding by the
// leading ShardDepth characters bounds the entry count of any one directory
// by the alphabet size, and keeping the full hash as the leaf directory means
// a path collision would require a hash collision.
type Namespace struct {
	Root       string
	Basename   string
	ShardDepth int
}

// The platform's fixed namespaces. The sharding algorithm is shared; only
// root, basename, and depth vary per object type.
var (
	MediaFiles      = Namespace{Root: "/media_files", Basename: "file.bin", ShardDepth: 5}
	MediaUploads    = Namespace{Root: "/media_uploads", Basename: "original_upload.bin", ShardDepth: 5}
	ModelWeights    = Namespace{Root: "/model_weights", Basename: "weight.bin", ShardDepth: 5}
	VoiceEmbeddings = Namespace{Root: "/voice_embeddings", Basename: "embedding.bin", ShardDepth: 5}
)

// Dir returns the directory for an object hash: one path segment per leading
// character up to ShardDepth, then the entire hash as the final segment.
// Hashes shorter than ShardDepth emit only as many shard segments as they
// have characters; no padding.
func (n Namespace) Dir(objectHash string) string {
	segments := make([]string, 0, n.ShardDepth+2)
	segments = append(segments, n.Root)
	for i := 0; i < n.ShardDepth && i < len(objectHash); i++ {
		segments = append(segments, objectHash[i:i+1])
	}
	segments = append(segments, objectHash)
	return path.Join(segments...)
}

// Path returns the full object path using the namespace's basename.
func (n Namespace) Path(objectHash string) string {
	return path.Join(n.Dir(objectHash), n.Basename)
}

// PathWithBasename returns the full path for a sibling object stored in the
// same hash directory, e.g. a preview image next to the original.
func (n Namespace) PathWithBasename(objectHash, basename string) string {
	return path.Join(n.Dir(objectHash), basename)
}

// LegacyShardDir reproduces the retired bespoke sharding scheme: up to three
// leading characters as segments, always excluding the final character of the
// hash, with a trailing slash. New writes never use it; it exists so readers
// of rows that persisted denormalized legacy paths still resolve them.
func LegacyShardDir(objectHash string) string {
	if len(objectHash) < 2 {
		return ""
	}
	depth := len(objectHash) - 1
	if depth > 3 {
		depth = 3
	}
	var b strings.Builder
	for i := 0; i < depth; i++ {
		b.WriteByte(objectHash[i])
		b.WriteByte('/')
	}
	return b.String()
}
