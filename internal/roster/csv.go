package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

// Column names.
const (
	ColumnEmail     = "email"
	ColumnFirstName = "firstName"
	ColumnLastName  = "lastName"
)

// CSV reads rosters from CSV files. Relative paths are resolved
// against BaseDir.
type CSV struct {
	BaseDir string
}

// Rows reads every data row of g.RosterFile.
func (c CSV) Rows(ctx context.Context, g service.Group) ([]domain.RosterRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := resolve(c.BaseDir, g.RosterFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, sourceError(path, err)
	}
	defer f.Close()

	return ReadRows(f)
}

// ReadRows parses a roster from r.
func ReadRows(r io.Reader) ([]domain.RosterRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrSourceUnavailable.WithDetails("read header").WithCause(err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := col[name]; !dup {
			col[name] = i
		}
	}
	for _, required := range []string{ColumnEmail, ColumnFirstName} {
		if _, ok := col[required]; !ok {
			return nil, domain.ErrSourceUnavailable.WithDetails("missing column " + required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []domain.RosterRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.ErrSourceUnavailable.WithDetails("read row").WithCause(err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, domain.RosterRow{
			Line:      line,
			Email:     field(rec, ColumnEmail),
			FirstName: field(rec, ColumnFirstName),
			LastName:  field(rec, ColumnLastName),
		})
	}
	return rows, nil
}

func resolve(base, path string) string {
	if base == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func sourceError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ErrSourceUnavailable.WithDetails("file not found: " + path).WithCause(err)
	}
	return domain.ErrSourceUnavailable.WithDetails(path).WithCause(err)
}

var _ service.RosterSource = CSV{}
