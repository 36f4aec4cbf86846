package normalize

import "testing"

func TestText(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"   ":                       "",
		"plain":                     "plain",
		"  leading and trailing  ":  "leading and trailing",
		"tabs\tand\nnewlines\r\n x": "tabs and newlines x",
		"multi    space":            "multi space",
		"non\u00a0breaking":          "non breaking",
		"crème  brûlée":             "crème brûlée",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Errorf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{"", " a  b ", "\n\tx\ty\n", "already clean", "    wide space "}
	for _, in := range inputs {
		once := Text(in)
		if twice := Text(once); twice != once {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
