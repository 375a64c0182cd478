package cachekeys

import "testing"

func TestParamsHashOrderIndependent(t *testing.T) {
	a := ParamsHash("category", "tags")
	b := ParamsHash("tags", "category", "tags", " ")
	if a != b {
		t.Fatalf("hash differs by order: %s vs %s", a, b)
	}
	if a == ParamsHash("category") {
		t.Fatal("different relation sets must not collide")
	}
	if got := ParamsHash(); got != NoParams {
		t.Fatalf("empty params = %q, want %q", got, NoParams)
	}
}

func TestKeyContract(t *testing.T) {
	h := ParamsHash("tags")
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"by id", ByID(Research, 7, "tags"), "research.7." + h},
		{"by slug", BySlug(Research, "sukuk-2024", "tags"), "research.slug.sukuk-2024." + h},
		{"published by slug", PublishedBySlug(Page, "about"), "page.published.slug.about.none"},
		{"page list", List(Page, "published"), "pages.published"},
		{"featured", List(Research, "featured", 6), "research.featured.6"},
		{"popular", List(Research, "popular", 5), "research.popular.5"},
		{"statistics", Statistics(Research), "research.statistics"},
		{"id pattern", ByIDPattern(Research, 7), "research.7.*"},
		{"list pattern", ListPattern(Page, "menu"), "pages.menu*"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup("research"); !ok {
		t.Fatal("research not registered")
	}
	if _, ok := Lookup("media"); ok {
		t.Fatal("unexpected type media")
	}
}
