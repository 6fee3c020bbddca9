package bucketpath

import (
	"testing"
)

func TestPathShardsLeadingCharacters(t *testing.T) {
	ns := Namespace{Root: "/media", Basename: "file.bin", ShardDepth: 5}
	got := ns.Path("abcdefghijk")
	want := "/media/a/b/c/d/e/abcdefghijk/file.bin"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPathShortHashEmitsFewerSegments(t *testing.T) {
	ns := Namespace{Root: "/media", Basename: "file.bin", ShardDepth: 5}
	got := ns.Path("foo")
	want := "/media/f/o/foo/file.bin"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPathIsDeterministic(t *testing.T) {
	hash := "9s85w5mrrqek9yf019z6bbrxc9tkqn2h"
	first := MediaFiles.Path(hash)
	second := MediaFiles.Path(hash)
	if first != second {
		t.Fatalf("path derivation not deterministic: %q vs %q", first, second)
	}
}

func TestSharedPrefixHashesStayDistinct(t *testing.T) {
	// Both hashes shard into the same directories; the full-hash leaf is what
	// disambiguates them.
	a := MediaFiles.Path("abcde0000")
	b := MediaFiles.Path("abcde1111")
	if a == b {
		t.Fatalf("distinct hashes derived the same path: %q", a)
	}
}

func TestNamespaceRootsAndBasenames(t *testing.T) {
	cases := []struct {
		ns   Namespace
		hash string
		want string
	}{
		{MediaFiles, "abcdef", "/media_files/a/b/c/d/e/abcdef/file.bin"},
		{MediaUploads, "abcdef", "/media_uploads/a/b/c/d/e/abcdef/original_upload.bin"},
		{ModelWeights, "abcdef", "/model_weights/a/b/c/d/e/abcdef/weight.bin"},
		{VoiceEmbeddings, "abcdef", "/voice_embeddings/a/b/c/d/e/abcdef/embedding.bin"},
	}
	for _, c := range cases {
		if got := c.ns.Path(c.hash); got != c.want {
			t.Fatalf("got %q, want %q", got, c.want)
		}
	}
}

func TestPathWithBasename(t *testing.T) {
	got := MediaUploads.PathWithBasename("abcdef", "preview.webp")
	want := "/media_uploads/a/b/c/d/e/abcdef/preview.webp"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLegacyShardDir(t *testing.T) {
	cases := []struct {
		hash string
		want string
	}{
		{"", ""},
		{"a", ""},
		{"ab", "a/"},
		{"abc", "a/b/"},
		{"abcd", "a/b/c/"},
		{"abcde", "a/b/c/"},
		{"abcdef01234", "a/b/c/"},
	}
	for _, c := range cases {
		if got := LegacyShardDir(c.hash); got != c.want {
			t.Fatalf("LegacyShardDir(%q) = %q, want %q", c.hash, got, c.want)
		}
	}
}
