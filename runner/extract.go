package runner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/dhcgn/eml-extract/model"
	"github.com/dhcgn/eml-extract/sanitize"
	"github.com/dhcgn/eml-extract/stats"
	"github.com/dhcgn/eml-extract/textnorm"
)

// BodyFileName is the name of the normalized body inside a message folder.
const BodyFileName = "email.html"

// extract writes msg into a fresh folder below the destination and returns
// the folder path. The first write error aborts the remaining writes.
func (r *Runner) extract(msg *model.Message) (string, error) {
	folder := filepath.Join(r.cfg.Dest, sanitize.FileName(msg.Subject)+"_"+r.newToken())
	w := &folderWriter{fs: r.fs, dir: folder, dryRun: r.cfg.DryRun, used: make(map[string]struct{})}

	if err := w.mkdir(); err != nil {
		return "", err
	}
	if _, err := w.write(BodyFileName, []byte(textnorm.Normalize(msg.Body()))); err != nil {
		return "", err
	}

	written := make(map[*model.Part]struct{})
	for _, part := range msg.Attachments {
		if err := r.writePart(w, msg.Origin, part, stats.EventTypeAttachment); err != nil {
			return "", err
		}
		written[part] = struct{}{}
	}

	var walkErr error
	model.Walk(msg.Root, func(part *model.Part) bool {
		if _, done := written[part]; done || !part.Saveable() {
			return true
		}
		evt := stats.EventTypeAttachment
		if part.Disposition == model.DispositionInline {
			evt = stats.EventTypeInline
		}
		if walkErr = r.writePart(w, msg.Origin, part, evt); walkErr != nil {
			return false
		}
		written[part] = struct{}{}
		return true
	})
	if walkErr != nil {
		return "", walkErr
	}

	return folder, nil
}

func (r *Runner) writePart(w *folderWriter, origin string, part *model.Part, evt stats.EventType) error {
	name, err := w.write(r.partName(part), part.Content)
	if err != nil {
		return err
	}
	r.EmitEvent(stats.Event{Stage: stats.StageExtract, Type: evt, Path: origin, Detail: name})
	return nil
}

// partName is the sanitized file name, or a UUID plus a sniffed extension
// when the part carries no name.
func (r *Runner) partName(part *model.Part) string {
	if strings.TrimSpace(part.FileName) != "" {
		return sanitize.FileName(part.FileName)
	}
	return r.newToken() + mimetype.Detect(part.Content).Extension()
}

type folderWriter struct {
	fs     afero.Fs
	dir    string
	dryRun bool
	used   map[string]struct{}
}

func (w *folderWriter) mkdir() error {
	if w.dryRun {
		return nil
	}
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", w.dir, err)
	}
	return nil
}

// write stores data under a name unique within the folder and returns the
// name actually used.
func (w *folderWriter) write(name string, data []byte) (string, error) {
	name = w.unique(name)
	if w.dryRun {
		return name, nil
	}

	path := filepath.Join(w.dir, name)
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return name, nil
}

// Names are compared case-insensitively so folders stay valid on
// case-insensitive filesystems.
func (w *folderWriter) unique(name string) string {
	candidate := name
	if w.taken(candidate) {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for i := 1; w.taken(candidate); i++ {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
	}
	w.used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func (w *folderWriter) taken(name string) bool {
	_, ok := w.used[strings.ToLower(name)]
	return ok
}
