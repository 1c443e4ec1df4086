package utils

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"plain text":                        "plain text",
		"  padded  ":                        "padded",
		"<b>bold</b> move":                  "bold move",
		"<script>alert(1)</script>":         "",
		"fish & chips":                      "fish & chips",
		`<a href="javascript:x()">link</a>`: "link",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
