package catalog

import "testing"

func TestContentHashStable(t *testing.T) {
	answers := []Answer{
		{Text: "2", IsCorrect: false},
		{Text: "4", IsCorrect: true},
	}
	a := ContentHash("What is 2+2?", answers)
	b := ContentHash("What is 2+2?", answers)
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64", len(a))
	}
}

func TestContentHashDetectsChanges(t *testing.T) {
	base := ContentHash("stem", []Answer{{Text: "a", IsCorrect: true}, {Text: "b"}})

	cases := map[string]string{
		"stem edit":       ContentHash("stem!", []Answer{{Text: "a", IsCorrect: true}, {Text: "b"}}),
		"answer text":     ContentHash("stem", []Answer{{Text: "a!", IsCorrect: true}, {Text: "b"}}),
		"correctness":     ContentHash("stem", []Answer{{Text: "a"}, {Text: "b", IsCorrect: true}}),
		"answer order":    ContentHash("stem", []Answer{{Text: "b"}, {Text: "a", IsCorrect: true}}),
		"answer feedback": ContentHash("stem", []Answer{{Text: "a", IsCorrect: true, Feedback: "yes"}, {Text: "b"}}),
		"answer added":    ContentHash("stem", []Answer{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}}),
	}
	for name, h := range cases {
		if h == base {
			t.Errorf("%s: hash unchanged", name)
		}
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	// Moving bytes between adjacent fields must change the digest.
	a := ContentHash("ab", []Answer{{Text: "c"}})
	b := ContentHash("a", []Answer{{Text: "bc"}})
	if a == b {
		t.Fatalf("field boundary collision")
	}
}
