package trash

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestResolveName(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		existing  []string
		want      string
	}{
		{"empty store", "a.txt", nil, "a.txt"},
		{"unrelated names", "a.txt", []string{"b.txt", "a.txt.1"}, "a.txt"},
		{"first collision", "a.txt", []string{"a.txt"}, "a.txt.1"},
		{"second collision", "a.txt", []string{"a.txt", "a.txt.1"}, "a.txt.2"},
		{"gap keeps highest", "a.txt", []string{"a.txt", "a.txt.7"}, "a.txt.8"},
		{"non numeric suffix", "a.txt", []string{"a.txt", "a.txt.bak"}, "a.txt.1"},
		{"non numeric does not lower", "a.txt", []string{"a.txt", "a.txt.4", "a.txt.bak"}, "a.txt.5"},
		{"no extension", "notes", []string{"notes"}, "notes.1"},
		{"no extension second", "notes", []string{"notes", "notes.1"}, "notes.2"},
		{"dotfile", ".bashrc", []string{".bashrc"}, ".bashrc.1"},
		{"dotfile second", ".bashrc", []string{".bashrc", ".bashrc.1"}, ".bashrc.2"},
		{"prefix is not a match", "a", []string{"a", "ab.3", "a.b.9"}, "a.1"},
		{"trailing dot", "a", []string{"a", "a."}, "a.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveName(tc.candidate, tc.existing)
			if got != tc.want {
				t.Fatalf("ResolveName(%q, %v) = %q, want %q", tc.candidate, tc.existing, got, tc.want)
			}
		})
	}
}

func TestResolveNameLeadingZeroSuffix(t *testing.T) {
	got := ResolveName("a.txt", []string{"a.txt", "a.txt.01"})
	if got != "a.txt.2" {
		t.Fatalf("got %q, want a.txt.2", got)
	}
}

func TestResolveNameNeverReturnsExisting(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	bases := []string{"a.txt", "notes", ".env", "x.tar.gz"}
	suffixes := []string{"", ".0", ".1", ".2", ".3", ".10", ".bak", ".", ".-1"}

	for round := 0; round < 500; round++ {
		candidate := bases[rng.IntN(len(bases))]
		var existing []string
		for i := rng.IntN(12); i > 0; i-- {
			base := bases[rng.IntN(len(bases))]
			existing = append(existing, base+suffixes[rng.IntN(len(suffixes))])
		}

		got := ResolveName(candidate, existing)
		if slices.Contains(existing, got) {
			t.Fatalf("round %d: ResolveName(%q, %v) returned existing name %q", round, candidate, existing, got)
		}
		if !slices.Contains(existing, candidate) && got != candidate {
			t.Fatalf("round %d: free candidate %q changed to %q", round, candidate, got)
		}
	}
}

func TestResolveNameSequence(t *testing.T) {
	var existing []string
	for i := 0; i < 5; i++ {
		name := ResolveName("report.pdf", existing)
		want := "report.pdf"
		if i > 0 {
			want = fmt.Sprintf("report.pdf.%d", i)
		}
		if name != want {
			t.Fatalf("step %d: got %q want %q", i, name, want)
		}
		existing = append(existing, name)
	}
}
