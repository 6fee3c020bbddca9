package entropy

import (
	"strings"
	"testing"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	for _, length := range []int{1, 5, 32, 64} {
		got := Generate(length)
		if len(got) != length {
			t.Fatalf("expected length %d, got %d (%q)", length, len(got), got)
		}
		for _, c := range got {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("character %q outside alphabet in %q", c, got)
			}
		}
	}
}

func TestGenerateZeroLength(t *testing.T) {
	if got := Generate(0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestGeneratedTokensAreClean(t *testing.T) {
	// Short tokens are the most likely to be dominated by a denylist match,
	// so hammer those as well as the production length.
	for i := 0; i < 2000; i++ {
		for _, length := range []int{3, 4, 32} {
			got := Generate(length)
			if !Clean(got) {
				t.Fatalf("generated token %q contains denylisted substring", got)
			}
		}
	}
}

func TestCleanRejectsDenylisted(t *testing.T) {
	cases := []string{
		"rape",
		"0rape9",
		"xRAPEx", // match is case-insensitive
		"abcsexdef",
		"kkk",
	}
	for _, c := range cases {
		if Clean(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestCleanAcceptsBenign(t *testing.T) {
	cases := []string{
		"",
		"0123456789",
		"zyxwvtsrqp",
		"h8e2m4n6",
	}
	for _, c := range cases {
		if !Clean(c) {
			t.Fatalf("expected %q to be accepted", c)
		}
	}
}

func TestNoDenylistEntryIsSubstringOfAnother(t *testing.T) {
	for i, a := range denylist {
		for j, b := range denylist {
			if i != j && strings.Contains(b, a) {
				t.Fatalf("denylist entry %q is a substring of %q", a, b)
			}
		}
	}
}
