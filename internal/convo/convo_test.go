package convo

import "testing"

func TestParseLanguage(t *testing.T) {
	cases := map[string]Language{
		"hi-IN":   Hindi,
		"hi":      Hindi,
		"EN-in":   English,
		"en_US":   English,
		" kn-IN ": Kannada,
		"kn":      Kannada,
		"fr-FR":   DefaultLanguage,
		"":        DefaultLanguage,
		"klingon": DefaultLanguage,
	}
	for in, want := range cases {
		if got := ParseLanguage(in); got != want {
			t.Fatalf("ParseLanguage(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLanguageName(t *testing.T) {
	if Hindi.Name() != "Hindi" || Kannada.Name() != "Kannada" || English.Name() != "English" {
		t.Fatalf("unexpected language names")
	}
	if Language("xx").Valid() {
		t.Fatalf("xx must not be valid")
	}
}

func TestTranscriptCloneIsIndependent(t *testing.T) {
	orig := Transcript{UserTurn("a")}
	c := orig.Clone()
	c[0].Text = "b"
	c = append(c, AssistantTurn("c"))
	if orig[0].Text != "a" || len(orig) != 1 {
		t.Fatalf("clone shares state with original: %+v", orig)
	}
	if last, ok := c.Last(); !ok || last.Role != RoleAssistant {
		t.Fatalf("unexpected last turn: %+v", last)
	}
	if _, ok := Transcript(nil).Last(); ok {
		t.Fatalf("empty transcript has no last turn")
	}
}
