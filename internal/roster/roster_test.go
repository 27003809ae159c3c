package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
)

func TestReadRows(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.RosterRow
		wantErr error
	}{
		{
			name:  "header trimmed and extra columns ignored",
			input: " email , firstName ,lastName,phone\na@x.com,ann,lee,123\n",
			want:  []domain.RosterRow{{Line: 2, Email: "a@x.com", FirstName: "ann", LastName: "lee"}},
		},
		{
			name:  "column order is free",
			input: "lastName,email,firstName\nlee,a@x.com,ann\n",
			want:  []domain.RosterRow{{Line: 2, Email: "a@x.com", FirstName: "ann", LastName: "lee"}},
		},
		{
			name:  "blank and short rows are kept",
			input: "email,firstName,lastName\n,,\nb@y.com\n",
			want: []domain.RosterRow{
				{Line: 2},
				{Line: 3, Email: "b@y.com"},
			},
		},
		{
			name:  "last name column optional",
			input: "email,firstName\na@x.com,ann\n",
			want:  []domain.RosterRow{{Line: 2, Email: "a@x.com", FirstName: "ann"}},
		},
		{
			name:  "byte order mark",
			input: "\ufeffemail,firstName,lastName\na@x.com,ann,lee\n",
			want:  []domain.RosterRow{{Line: 2, Email: "a@x.com", FirstName: "ann", LastName: "lee"}},
		},
		{
			name:  "empty file",
			input: "",
			want:  nil,
		},
		{
			name:    "missing email column",
			input:   "mail,firstName\nx,y\n",
			wantErr: domain.ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadRows(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadRows() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadRows() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ReadRows() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("row %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCSV_Rows(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tech.csv"), []byte("email,firstName,lastName\na@x.com,ann,lee\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := CSV{BaseDir: dir}

	rows, err := src.Rows(context.Background(), service.Group{Name: "Tech", RosterFile: "tech.csv"})
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Email != "a@x.com" {
		t.Errorf("Rows() = %+v", rows)
	}

	_, err = src.Rows(context.Background(), service.Group{Name: "Art", RosterFile: "art.csv"})
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Errorf("Rows() missing file error = %v, want ErrSourceUnavailable", err)
	}
}

func TestCSV_RowsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (CSV{}).Rows(ctx, service.Group{RosterFile: "x.csv"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Rows() error = %v, want context.Canceled", err)
	}
}

func TestFiles_Template(t *testing.T) {
	dir := t.TempDir()
	body := "<p>Hi {{FIRST_NAME}}</p>"
	if err := os.WriteFile(filepath.Join(dir, "tech.html"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "empty.html"), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := Files{BaseDir: dir}

	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"relative", "tech.html", false},
		{"absolute", filepath.Join(dir, "tech.html"), false},
		{"missing", "art.html", true},
		{"empty", "empty.html", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := src.Template(context.Background(), service.Group{TemplateFile: tt.file})
			if tt.wantErr {
				if !errors.Is(err, domain.ErrSourceUnavailable) {
					t.Fatalf("Template() error = %v, want ErrSourceUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Template() error = %v", err)
			}
			if tpl.Body != body || tpl.Name != "tech.html" {
				t.Errorf("Template() = %+v", tpl)
			}
		})
	}
}
