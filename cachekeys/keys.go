// Package cachekeys builds the cache key names shared by read paths and the
// invalidation router so both sides agree on key shape.
package cachekeys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Separator joins key segments.
const Separator = "."

// NoParams is the params hash of a value produced without relation parameters.
const NoParams = "none"

// EntityType describes a cacheable content type.
type EntityType struct {
	Name   string
	Plural string
	// Lists holds every list qualifier published for the type.
	Lists []string
}

var (
	Page = EntityType{
		Name:   "page",
		Plural: "pages",
		Lists:  []string{"published", "menu"},
	}
	Research = EntityType{
		Name:   "research",
		Plural: "research",
		Lists:  []string{"published", "featured", "popular", "latest", "most-downloaded"},
	}
)

var registry = map[string]EntityType{
	Page.Name:     Page,
	Research.Name: Research,
}

// Lookup returns the registered entity type by name.
func Lookup(name string) (EntityType, bool) {
	t, ok := registry[name]
	return t, ok
}

// ParamsHash returns a stable hash of the relation parameters used to build a
// cached value. Order, duplicates and blanks do not change the result.
func ParamsHash(params ...string) string {
	set := make([]string, 0, len(params))
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		set = append(set, p)
	}
	if len(set) == 0 {
		return NoParams
	}
	sort.Strings(set)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(set, ",")), 16)
}

func join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// ByID is {entityType}.{id}.{paramsHash}.
func ByID(t EntityType, id uint, params ...string) string {
	return join(t.Name, utoa(id), ParamsHash(params...))
}

// BySlug is {entityType}.slug.{slug}.{paramsHash}.
func BySlug(t EntityType, slug string, params ...string) string {
	return join(t.Name, "slug", slug, ParamsHash(params...))
}

// PublishedBySlug is {entityType}.published.slug.{slug}.{paramsHash}.
func PublishedBySlug(t EntityType, slug string, params ...string) string {
	return join(t.Name, "published", "slug", slug, ParamsHash(params...))
}

// List is {plural}.{qualifier} with optional trailing arguments such as a limit.
func List(t EntityType, qualifier string, args ...any) string {
	parts := []string{t.Plural, qualifier}
	for _, a := range args {
		parts = append(parts, toString(a))
	}
	return join(parts...)
}

// Statistics is {entityType}.statistics.
func Statistics(t EntityType) string {
	return join(t.Name, "statistics")
}

// ByIDPattern matches every params variant of one entity's by-id entry.
func ByIDPattern(t EntityType, id uint) string {
	return join(t.Name, utoa(id), "*")
}

func BySlugPattern(t EntityType, slug string) string {
	return join(t.Name, "slug", slug, "*")
}

func PublishedBySlugPattern(t EntityType, slug string) string {
	return join(t.Name, "published", "slug", slug, "*")
}

// ListPattern matches the bare list key and every parameterised variant.
func ListPattern(t EntityType, qualifier string) string {
	return join(t.Plural, qualifier) + "*"
}

// Tags used by tag-capable backends. A producer attaches them on write and the
// router flushes them on mutation.

func TagEntity(t EntityType, id uint) string {
	return "tag:" + join(t.Name, utoa(id))
}

func TagSlug(t EntityType, slug string) string {
	return "tag:" + join(t.Name, "slug", slug)
}

func TagLists(t EntityType) string {
	return "tag:" + join(t.Plural, "lists")
}

func TagStatistics(t EntityType) string {
	return "tag:" + Statistics(t)
}

func utoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return utoa(t)
	default:
		return strings.ReplaceAll(fmt.Sprint(v), " ", "_")
	}
}
