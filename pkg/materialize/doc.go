// Package materialize writes the canonical Markdown representation of a
// document replica: YAML-like front matter (id, title), a blank line, the
// content, and a terminating newline. Writes are skipped when the rendered
// bytes match what is already on disk.
package materialize
