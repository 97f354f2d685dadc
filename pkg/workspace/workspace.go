package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/types"
)

// Workspace is the on-disk layout rooted at a single data directory:
//
//	<root>/docs/<id>.md            canonical Markdown files
//	<root>/attachments/<id>/...    per-document attachments
//	<root>/plugins/...             plugin asset trees
type Workspace struct {
	root string
}

// New creates the layout under root if needed.
func New(root string) (*Workspace, error) {
	for _, dir := range []string{root, filepath.Join(root, "docs"), filepath.Join(root, "attachments"), filepath.Join(root, "plugins")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// DocFilePath returns the canonical Markdown path for a document.
func (w *Workspace) DocFilePath(id uuid.UUID) string {
	return filepath.Join(w.root, "docs", id.String()+".md")
}

// SyncDocPaths makes sure the directories for a document's file and
// attachments exist.
func (w *Workspace) SyncDocPaths(id uuid.UUID) error {
	if err := os.MkdirAll(filepath.Dir(w.DocFilePath(id)), 0755); err != nil {
		return err
	}
	return os.MkdirAll(w.AttachmentsDir(id), 0755)
}

// AttachmentsDir returns the attachments directory for a document.
func (w *Workspace) AttachmentsDir(id uuid.UUID) string {
	return filepath.Join(w.root, "attachments", id.String())
}

// ReadBytes reads a file.
func (w *Workspace) ReadBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteBytes writes a file through a temp file and rename so readers never
// observe a half-written document.
func (w *Workspace) WriteBytes(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".inklet-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// AbsoluteFromRelative resolves a workspace-relative path, rejecting
// anything that escapes the root.
func (w *Workspace) AbsoluteFromRelative(rel string) (string, error) {
	cleaned := filepath.Clean(strings.TrimPrefix(rel, "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace: %w", rel, types.ErrInvalidInput)
	}
	return filepath.Join(w.root, cleaned), nil
}

// PluginAssetPath resolves a plugin asset under the plugins tree. The
// relative path must already be normalized by the asset signer.
func (w *Workspace) PluginAssetPath(pluginID, version, relPath string) (string, error) {
	return w.AbsoluteFromRelative(filepath.Join("plugins", pluginID, version, relPath))
}

// Attachment is one file belonging to a document, addressed relative to
// the document's attachments directory.
type Attachment struct {
	RelPath string
	Path    string
}

// ListAttachments walks a document's attachments directory. A missing
// directory yields an empty list.
func (w *Workspace) ListAttachments(id uuid.UUID) ([]Attachment, error) {
	dir := w.AttachmentsDir(id)
	var out []Attachment
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, Attachment{RelPath: filepath.ToSlash(rel), Path: path})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}
