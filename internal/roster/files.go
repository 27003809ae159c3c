package roster

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// Files loads notification templates from files. Relative paths are
// resolved against BaseDir.
type Files struct {
	BaseDir string
}

// Template reads g.TemplateFile. An empty file is unavailable.
func (f Files) Template(ctx context.Context, g service.Group) (*service.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := resolve(f.BaseDir, g.TemplateFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, sourceError(path, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, domain.ErrSourceUnavailable.WithDetails("empty template: " + path)
	}
	return &service.Template{
		Name: filepath.Base(path),
		Body: string(b),
	}, nil
}

var _ service.TemplateSource = Files{}
