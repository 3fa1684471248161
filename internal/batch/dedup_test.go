package batch

import (
	"testing"

	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

func turns(texts ...string) []transcript.Turn {
	out := make([]transcript.Turn, len(texts))
	for i, t := range texts {
		out[i] = transcript.Turn{Text: t, IsChatbot: i%2 == 1}
	}
	return out
}

func TestFingerprint(t *testing.T) {
	a := transcript.Transcript{ID: "SNG01.json", Turns: turns("hi", "hello")}
	b := transcript.Transcript{ID: "SNG01.json", Turns: turns("hi", "hello")}
	c := transcript.Transcript{ID: "SNG01.json", Turns: turns("hi", "hello there")}
	d := transcript.Transcript{ID: "SNG02.json", Turns: turns("hi", "hello")}

	if fingerprint(a) != fingerprint(b) {
		t.Error("identical transcripts should share a fingerprint")
	}
	if fingerprint(a) == fingerprint(c) {
		t.Error("different text should change the fingerprint")
	}
	if fingerprint(a) == fingerprint(d) {
		t.Error("different id should change the fingerprint")
	}

	swapped := transcript.Transcript{ID: "SNG01.json", Turns: []transcript.Turn{{Text: "hi", IsChatbot: true}, {Text: "hello"}}}
	if fingerprint(a) == fingerprint(swapped) {
		t.Error("speaker should be part of the fingerprint")
	}
}

func TestDedupe(t *testing.T) {
	seen := make(map[string]bool)
	first := []transcript.Transcript{
		{ID: "A", Turns: turns("x")},
		{ID: "A", Turns: turns("x")},
		{ID: "B", Err: transcript.ErrMalformedTranscript},
	}

	kept, skipped := dedupe(first, seen)
	if len(kept) != 2 || skipped != 1 {
		t.Fatalf("kept=%d skipped=%d, want 2/1", len(kept), skipped)
	}

	// A later file repeating A is skipped; failures are always kept.
	second := []transcript.Transcript{
		{ID: "A", Turns: turns("x")},
		{ID: "B", Err: transcript.ErrMalformedTranscript},
	}
	kept, skipped = dedupe(second, seen)
	if len(kept) != 1 || skipped != 1 || kept[0].ID != "B" {
		t.Errorf("kept=%v skipped=%d", kept, skipped)
	}
}
