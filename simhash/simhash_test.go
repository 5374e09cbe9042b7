package simhash

import (
	"testing"
)

func TestFingerprint_IdenticalTexts(t *testing.T) {
	text := "Show HN: a tiny scheduler written in one weekend"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("identical texts produced different fingerprints")
	}
}

func TestFingerprint_CaseAndSpacingInsensitive(t *testing.T) {
	a := Fingerprint("Breaking  news:\tmarkets rally")
	b := Fingerprint("breaking news: MARKETS rally")
	if a != b {
		t.Errorf("case/whitespace variants differ: %064b vs %064b", a, b)
	}
}

func TestFingerprint_DifferentTexts(t *testing.T) {
	a := Fingerprint("the quick brown fox jumps over the lazy dog")
	b := Fingerprint("completely unrelated content about quantum physics and mathematics")

	if dist := Distance(a, b); dist < 5 {
		t.Errorf("very different texts have too small distance: %d", dist)
	}
}

func TestFingerprint_EmptyInput(t *testing.T) {
	if fp := Fingerprint("   \t\n  "); fp != 0 {
		t.Errorf("blank input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestFingerprint_SingleWord(t *testing.T) {
	if Fingerprint("hello") == 0 {
		t.Error("single word should produce a non-zero fingerprint")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestShingles(t *testing.T) {
	got := shingles([]string{"a", "b", "c"}, 2)
	want := []string{"a b", "b c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d shingles, got %d: %v", len(want), len(got), got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("shingle[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if shingles([]string{"a"}, 2) != nil {
		t.Error("too few tokens should produce no shingles")
	}
}

func TestIndex_RejectsNearDuplicates(t *testing.T) {
	ix := NewIndex(3)

	if !ix.Add(0b1010) {
		t.Fatal("first fingerprint should be added")
	}
	if ix.Add(0b1011) {
		t.Error("fingerprint one bit away should be rejected")
	}
	if !ix.Add(^uint64(0)) {
		t.Error("distant fingerprint should be added")
	}
	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}
}

func TestIndex_NearAndInsert(t *testing.T) {
	ix := NewIndex(3)

	if got := ix.Insert(0b1010); got != 0 {
		t.Fatalf("Insert() = %d, want 0", got)
	}
	if got := ix.Insert(0b1011); got != 1 {
		t.Fatalf("Insert() = %d, want 1", got)
	}
	ix.Insert(^uint64(0))

	near := ix.Near(0b1000)
	if len(near) != 2 || near[0] != 0 || near[1] != 1 {
		t.Errorf("Near() = %v, want [0 1]", near)
	}
	if near := ix.Near(0xF0F0F0F0F0F0F0F0); len(near) != 0 {
		t.Errorf("Near() = %v, want none", near)
	}
}
