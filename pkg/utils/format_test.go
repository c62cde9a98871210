package utils

import "testing"

func Test_FormatCents(t *testing.T) {
	cases := map[int64]string{
		0:         "0.00",
		5:         "0.05",
		123456:    "1,234.56",
		-250075:   "-2,500.75",
		100000000: "1,000,000.00",
	}
	for in, want := range cases {
		if got := FormatCents(in); got != want {
			t.Fatalf("FormatCents(%d) = %q, want %q", in, got, want)
		}
	}
}

func Test_Label(t *testing.T) {
	if got := Label("in_progress"); got != "In Progress" {
		t.Fatalf("got %q", got)
	}
	if got := Label(""); got != "Uncategorized" {
		t.Fatalf("got %q", got)
	}
}
