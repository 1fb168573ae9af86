package credential

import "testing"

func TestLoginHandle(t *testing.T) {
	cases := map[string]string{
		"José María":        "jose.maria",
		"  Lucía   Núñez ":  "lucia.nunez",
		"Ana-Sofía O'Brien": "ana.sofia.obrien",
		"Björn 2":           "bjorn.2",
		"!!!":               "student",
		"":                  "student",
	}
	for in, want := range cases {
		if got := LoginHandle(in); got != want {
			t.Fatalf("LoginHandle(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestLoginHandleTruncates(t *testing.T) {
	got := LoginHandle("Maximiliano Bartolomé de las Casas Fernández")
	if len(got) > maxHandleLen {
		t.Fatalf("len: want<=%d got=%d (%q)", maxHandleLen, len(got), got)
	}
	if got[len(got)-1] == '.' {
		t.Fatalf("trailing dot: %q", got)
	}
}

func TestHasherRoundTrip(t *testing.T) {
	h := Hasher{Cost: 4}
	hash, err := h.Hash("0427")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Compare(hash, "0427") || h.Compare(hash, "0428") {
		t.Fatalf("compare mismatch")
	}
}
