package storage

import "testing"

func TestObjectKey(t *testing.T) {
	got := ObjectKey("sess-42", 3)
	want := "sessions/sess-42/answer_003.wav"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSummaryKey(t *testing.T) {
	got := SummaryKey("sess-42")
	want := "sessions/sess-42/summary.json"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
