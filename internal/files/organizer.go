// Package files moves raw engine artifacts into the canonical library
// layout and derives thumbnails for them.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/joeflack4/genonaut/internal/models"
)

const thumbnailWidth = 256

// Organizer copies engine outputs into a per-user/date/job directory tree
// under basePath and writes a thumbnail next to each artifact.
//
//	<basePath>/<user_id>/<YYYY-MM-DD>/<job_id>/<filename>
//	<basePath>/<user_id>/<YYYY-MM-DD>/<job_id>/thumbnails/<filename>
type Organizer struct {
	basePath  string
	engineDir string
}

func NewOrganizer(basePath, engineDir string) (*Organizer, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("files: base path is required")
	}
	if strings.TrimSpace(engineDir) == "" {
		return nil, errors.New("files: engine output dir is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("files: ensure base path: %w", err)
	}
	return &Organizer{basePath: basePath, engineDir: engineDir}, nil
}

// Result lists the organized artifact and thumbnail paths, in output order.
type Result struct {
	OutputPaths    []string
	ThumbnailPaths []string
}

// Organize relocates every engine output for job and generates thumbnails.
// Any failure aborts the whole batch; the caller marks the job failed rather
// than exposing partially linked content.
func (o *Organizer) Organize(ctx context.Context, job *models.GenerationJob, outputs []engine.Output) (*Result, error) {
	if len(outputs) == 0 {
		return nil, errors.New("files: engine reported no outputs")
	}

	date := job.CreatedAt.UTC().Format("2006-01-02")
	jobDir := filepath.Join(o.basePath, job.UserID.String(), date, job.ID.String())
	thumbDir := filepath.Join(jobDir, "thumbnails")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return nil, fmt.Errorf("files: ensure job directory: %w", err)
	}

	res := &Result{}
	for _, out := range outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := sanitizeName(out.Filename)
		if err != nil {
			return nil, err
		}
		src := filepath.Join(o.engineDir, filepath.FromSlash(out.Subfolder), name)
		dst := filepath.Join(jobDir, name)

		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("files: organize %s: %w", name, err)
		}

		thumb := filepath.Join(thumbDir, name)
		if err := writeThumbnail(dst, thumb); err != nil {
			return nil, fmt.Errorf("files: thumbnail %s: %w", name, err)
		}

		res.OutputPaths = append(res.OutputPaths, dst)
		res.ThumbnailPaths = append(res.ThumbnailPaths, thumb)
	}
	return res, nil
}

// Discard removes a job's organized directory, for completion races where
// the results must not surface.
func (o *Organizer) Discard(job *models.GenerationJob) error {
	date := job.CreatedAt.UTC().Format("2006-01-02")
	jobDir := filepath.Join(o.basePath, job.UserID.String(), date, job.ID.String())
	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("files: discard job directory: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func writeThumbnail(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return err
	}
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	return imaging.Save(thumb, dst)
}

// sanitizeName rejects filenames that would escape the job directory.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("files: empty artifact name")
	}
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned != filepath.Base(cleaned) || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("files: invalid artifact name %q", name)
	}
	return cleaned, nil
}
