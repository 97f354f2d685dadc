// Package workspace owns the on-disk file layout: canonical Markdown
// files, per-document attachments and plugin asset trees, all rooted at a
// single data directory. Writes go through temp-file-and-rename.
package workspace
