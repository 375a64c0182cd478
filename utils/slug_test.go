package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Annual Report 2024!":          "annual-report-2024",
		"  Islamic  Finance -- Review ": "islamic-finance-review",
		"التقرير السنوي":                "التقرير-السنوي",
		"مُحَمَّد":                       "محمد",
		"الـــتقرير":                    "التقرير",
		"Sukuk / الصكوك":                "sukuk-الصكوك",
		"٢٠٢٤ report":                   "٢٠٢٤-report",
		" -- ":                          "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugifyLength(t *testing.T) {
	got := Slugify(strings.Repeat("ab ", 200))
	if n := utf8.RuneCountInString(got); n > maxSlugRunes {
		t.Fatalf("slug has %d runes", n)
	}
	if strings.HasSuffix(got, "-") {
		t.Fatalf("slug ends with a dash: %q", got)
	}
}

func TestUniqueIDs(t *testing.T) {
	got := UniqueIDs([]uint{3, 0, 1, 3, 2, 1})
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("UniqueIDs = %v", got)
	}
}
