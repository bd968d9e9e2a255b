// Package coalesce repairs the noisy element stream produced by layout extraction
// into chunks worth embedding: adjacent fragments of the same category are merged,
// then short fragments are glued together, never across hard categories or headings.
package coalesce

import (
	"strings"
	"unicode/utf8"
)

type Config struct {
	// MinLen is the character count below which a chunk absorbs its successor.
	MinLen int
	// KeepHeadingsSeparate blocks gluing into or out of title/heading/header chunks.
	KeepHeadingsSeparate bool
	// AvoidCrossPageMerge restricts pass 1 to elements on the same page.
	AvoidCrossPageMerge bool
	// HardCategories never merge with anything in pass 2.
	HardCategories []string
}

func DefaultConfig() Config {
	return Config{
		MinLen:               50,
		KeepHeadingsSeparate: true,
		AvoidCrossPageMerge:  true,
		HardCategories:       []string{CategoryTable, CategoryCode, CategoryFigure, CategoryCaption},
	}
}

// IngestConfig is the profile used when indexing uploaded documents.
func IngestConfig() Config {
	cfg := DefaultConfig()
	cfg.MinLen = 80
	return cfg
}

func (c Config) isHard(category string) bool {
	for _, h := range c.HardCategories {
		if strings.EqualFold(h, category) {
			return true
		}
	}
	return false
}

// Coalesce runs both passes. Input order is significant and preserved; inputs are not mutated.
func Coalesce(elements []Element, cfg Config) []Element {
	return EnsureMinLength(MergeAdjacent(elements, cfg), cfg)
}

// MergeAdjacent is pass 1: runs of equal category (and, when configured, compatible
// page) collapse into one chunk. Categories compare case-insensitively. The run's page is
// the page of its first element: an unknown run page accepts any element, a known one
// accepts only the same page, so an element without a page starts a new run.
func MergeAdjacent(elements []Element, cfg Config) []Element {
	out := make([]Element, 0, len(elements))
	var (
		buf     []Element
		bufPage *int
	)
	for _, raw := range elements {
		el := normalize(raw)
		if len(buf) > 0 && strings.EqualFold(el.Category, buf[0].Category) &&
			(!cfg.AvoidCrossPageMerge || pagesCompatible(bufPage, el.Page)) {
			buf = append(buf, el)
			continue
		}
		out = flush(out, buf, bufPage)
		buf = []Element{el}
		bufPage = el.Page
	}
	return flush(out, buf, bufPage)
}

func pagesCompatible(run, next *int) bool {
	if run == nil {
		return true
	}
	return next != nil && *run == *next
}

func flush(out []Element, buf []Element, page *int) []Element {
	if len(buf) == 0 {
		return out
	}
	merged := buf[0].clone()
	parts := make([]string, 0, len(buf))
	var cats []string
	for _, el := range buf {
		if el.Content != "" {
			parts = append(parts, el.Content)
		}
		cats = addCategories(cats, el)
	}
	merged.Content = strings.Join(parts, "\n")
	merged.Page = page
	merged.Metadata[MetaLayoutCategories] = cats
	return append(out, merged)
}

// EnsureMinLength is pass 2: an accumulator shorter than MinLen swallows the next
// chunk unless either side is hard or (with heading separation) heading-like.
func EnsureMinLength(chunks []Element, cfg Config) []Element {
	out := make([]Element, 0, len(chunks))
	var acc *Element
	for _, raw := range chunks {
		c := normalize(raw)
		if acc == nil {
			acc = &c
			continue
		}
		barrier := cfg.isHard(acc.Category) || cfg.isHard(c.Category) ||
			(cfg.KeepHeadingsSeparate && (isHeading(acc.Category) || isHeading(c.Category)))
		if !barrier && utf8.RuneCountInString(acc.Content) < cfg.MinLen {
			glued := glue(*acc, c)
			acc = &glued
			continue
		}
		out = append(out, *acc)
		acc = &c
	}
	if acc != nil {
		out = append(out, *acc)
	}
	return out
}

func glue(acc, next Element) Element {
	switch {
	case next.Content == "":
	case acc.Content == "":
		acc.Content = next.Content
	default:
		acc.Content = acc.Content + "\n" + next.Content
	}
	if acc.Page == nil && next.Page != nil {
		p := *next.Page
		acc.Page = &p
	}
	acc.Metadata[MetaLayoutCategories] = addCategories(addCategories(nil, acc), next)
	return acc
}

// addCategories appends the categories an element represents, keeping first-seen order.
func addCategories(dst []string, el Element) []string {
	src := el.LayoutCategories()
	if len(src) == 0 {
		src = []string{el.Category}
	}
	for _, c := range src {
		seen := false
		for _, d := range dst {
			if d == c {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, c)
		}
	}
	return dst
}
