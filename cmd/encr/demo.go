// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// demo.go wires a small document domain into the registry so the CLI has
// something to invoke out of the box: a Document entity holding a tree of
// Section entities, and six functions exercising pure borrowing, creation,
// mutation, detachment, and a multi-valued non-entity return (§4.6, §4.7).
package main

import (
	"fmt"
	"strings"

	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/registry"
)

// Section is a nested entity: one heading of a Document.
type Section struct {
	Heading string
	Body    string
}

// Document is the demo's root entity: a title, a body, and an ordered set
// of Section children reachable as entity-valued fields (§3's containers).
type Document struct {
	Title    string
	Body     string
	Sections []*Section
}

// WordCount is a configuration entity: a scalar bundle promoted to an
// audited parameter, never itself holding entity-typed fields (§4.4).
type WordCount struct {
	MinLength int
}

func registerDemo(reg *registry.Registry) error {
	if err := registry.Declare[Document](entity.KindEntity); err != nil {
		return err
	}
	if err := registry.Declare[Section](entity.KindEntity); err != nil {
		return err
	}
	if err := registry.Declare[WordCount](entity.KindConfig); err != nil {
		return err
	}

	if err := registry.Register(reg, "concat_headings", concatHeadings, "a", "b"); err != nil {
		return err
	}
	if err := registry.Register(reg, "new_document", newDocument, "title", "body"); err != nil {
		return err
	}
	if err := registry.Register(reg, "add_section", addSection, "doc", "heading", "body"); err != nil {
		return err
	}
	if err := registry.Register(reg, "extract_section", extractSection, "doc", "index"); err != nil {
		return err
	}
	if err := registry.Register(reg, "merge_documents", mergeDocuments, "a", "b"); err != nil {
		return err
	}
	if err := registry.Register(reg, "long_words", longWords, "doc", "cfg"); err != nil {
		return err
	}
	return nil
}

// concatHeadings joins two scalar strings into a brand-new Section's
// heading (pure borrowing: both parameters are plain scalars, typically
// supplied as field-value addresses into sections of other documents,
// e.g. "@d_xyz.Sections.0.Heading" — §4.5's provenance_map still cites
// each address's source entity even though neither value is itself an
// entity).
func concatHeadings(a, b string) (*Section, error) {
	return &Section{Heading: strings.TrimSpace(a + " " + b)}, nil
}

// newDocument creates a fresh, section-less Document (creation).
func newDocument(title, body string) (*Document, error) {
	if title == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	return &Document{Title: title, Body: body}, nil
}

// addSection appends a Section to doc's tree and returns doc itself,
// unchanged in identity but grown in shape (mutation).
func addSection(doc *Document, heading, body string) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("doc must not be nil")
	}
	doc.Sections = append(doc.Sections, &Section{Heading: heading, Body: body})
	return doc, nil
}

// extractSection removes the section at index from doc's tree and returns
// it on its own (detachment): the registry structurally drops the edge
// from doc and roots the Section independently (§4.7).
func extractSection(doc *Document, index int) (*Section, error) {
	if doc == nil {
		return nil, fmt.Errorf("doc must not be nil")
	}
	if index < 0 || index >= len(doc.Sections) {
		return nil, fmt.Errorf("section index %d out of range (have %d)", index, len(doc.Sections))
	}
	sec := doc.Sections[index]
	doc.Sections = append(doc.Sections[:index], doc.Sections[index+1:]...)
	return sec, nil
}

// mergeDocuments concatenates two documents' sections into a brand-new
// Document (creation from multiple entity inputs).
func mergeDocuments(a, b *Document) (*Document, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("both documents must be non-nil")
	}
	merged := &Document{
		Title: a.Title + " + " + b.Title,
		Body:  a.Body + "\n" + b.Body,
	}
	merged.Sections = append(merged.Sections, a.Sections...)
	merged.Sections = append(merged.Sections, b.Sections...)
	return merged, nil
}

// longWords returns the count of words at least cfg.MinLength long across
// doc's body and every section, and the count of sections scanned — a
// two-valued, non-entity return (B7: each primitive wrapped as a fresh
// entity of its own).
func longWords(doc *Document, cfg *WordCount) (int, int, error) {
	if doc == nil {
		return 0, 0, fmt.Errorf("doc must not be nil")
	}
	count := countLong(doc.Body, cfg.MinLength)
	for _, s := range doc.Sections {
		count += countLong(s.Body, cfg.MinLength)
	}
	return count, len(doc.Sections), nil
}

func countLong(text string, minLength int) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if len(w) >= minLength {
			n++
		}
	}
	return n
}
