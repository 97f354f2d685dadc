package snapshot

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/materialize"
	"github.com/inklet/inklet/pkg/types"
	"github.com/inklet/inklet/pkg/workspace"
)

// AttachmentLister enumerates a document's attachment files; the
// workspace implements it.
type AttachmentLister interface {
	ListAttachments(id uuid.UUID) ([]workspace.Attachment, error)
}

// BuildArchiveZip renders an archive as a downloadable ZIP: one top-level
// folder named after the sanitized label, containing the Markdown file and
// the document's attachments under their relative paths. Returns the zip
// bytes and the suggested file name.
func (s *Service) BuildArchiveZip(archiveID uuid.UUID, title string, attachments AttachmentLister) ([]byte, string, error) {
	record, content, err := s.LoadArchiveMarkdown(archiveID)
	if err != nil {
		return nil, "", err
	}

	folder := SanitizeLabel(record.Label)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	mdName := folder + "/" + folder + ".md"
	w, err := zw.Create(mdName)
	if err != nil {
		return nil, "", err
	}
	if _, err := w.Write(materialize.RenderFile(record.DocumentID, title, content)); err != nil {
		return nil, "", err
	}

	if attachments != nil {
		files, err := attachments.ListAttachments(record.DocumentID)
		if err != nil {
			return nil, "", fmt.Errorf("list attachments for %s: %w", record.DocumentID, err)
		}
		for _, f := range files {
			rel, err := sanitizeRelPath(f.RelPath)
			if err != nil {
				return nil, "", err
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return nil, "", fmt.Errorf("read attachment %s: %w", f.RelPath, err)
			}
			w, err := zw.Create(folder + "/" + rel)
			if err != nil {
				return nil, "", err
			}
			if _, err := w.Write(data); err != nil {
				return nil, "", err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), folder + ".zip", nil
}

// SanitizeLabel turns an archive label into a safe folder/file stem.
func SanitizeLabel(label string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		default:
			return r
		}
	}, strings.TrimSpace(label))
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "snapshot"
	}
	return cleaned
}

// sanitizeRelPath normalizes an attachment path for the zip: backslashes
// become slashes; parent or rooted components are rejected.
func sanitizeRelPath(rel string) (string, error) {
	normalized := strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("attachment path %q is rooted: %w", rel, types.ErrInvalidInput)
	}
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return "", fmt.Errorf("attachment path %q contains a parent component: %w", rel, types.ErrInvalidInput)
		}
	}
	return normalized, nil
}
