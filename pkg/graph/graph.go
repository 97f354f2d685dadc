package graph

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	wikiLinkRe = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|[^\[\]]*)?\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}][\p{L}\p{N}/_-]*)`)
)

// ExtractLinks returns the deduplicated [[wikilink]] targets in order of
// first appearance. Alias syntax [[target|label]] resolves to the target.
func ExtractLinks(markdown string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range wikiLinkRe.FindAllStringSubmatch(markdown, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// ExtractTags returns the deduplicated #tags in order of first appearance.
func ExtractTags(markdown string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range tagRe.FindAllStringSubmatch(markdown, -1) {
		tag := m[1]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// LinkSink persists a document's outgoing links.
type LinkSink interface {
	PutDocumentLinks(owner, doc uuid.UUID, targets []string) error
}

// TagSink persists a document's tags.
type TagSink interface {
	PutDocumentTags(owner, doc uuid.UUID, tags []string) error
}

// Updater extracts links and tags from materialized Markdown and writes
// them to the graph store.
type Updater struct {
	links LinkSink
	tags  TagSink
}

// NewUpdater wires an Updater to its sinks.
func NewUpdater(links LinkSink, tags TagSink) *Updater {
	return &Updater{links: links, tags: tags}
}

// UpdateDocumentLinks re-extracts and stores the link set.
func (u *Updater) UpdateDocumentLinks(owner, doc uuid.UUID, markdown string) error {
	return u.links.PutDocumentLinks(owner, doc, ExtractLinks(markdown))
}

// UpdateDocumentTags re-extracts and stores the tag set.
func (u *Updater) UpdateDocumentTags(owner, doc uuid.UUID, markdown string) error {
	return u.tags.PutDocumentTags(owner, doc, ExtractTags(markdown))
}
