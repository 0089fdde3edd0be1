package validation

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ckan/ckanext-spatial/pkg/iso"
)

// FileResult is the outcome of ValidateFile.
type FileResult struct {
	Path     string
	Profiles []string
	Result
}

// ValidateFile reads a metadata file, validates it and, when valid, checks
// that its values can be read. A missing, non UTF-8 or malformed file is an
// error rather than an invalid result.
func (v *Validators) ValidateFile(path string) (*FileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("filepath %s not found", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("unicode error reading file '%s': invalid UTF-8", path)
	}

	doc, err := iso.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	res := &FileResult{
		Path:     path,
		Profiles: v.Profiles(),
		Result:   v.Validate(doc),
	}

	if res.Valid {
		if _, err := doc.ReadValues(); err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("CKAN exception reading values from ISODocument: %v", err))
		}
	}

	return res, nil
}

// WriteSummary prints a FileResult the way the file command reports it.
func WriteSummary(w io.Writer, res *FileResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Validators: %s\n", strings.Join(res.Profiles, ", "))
	b.WriteString("***************\n")
	b.WriteString("Summary\n")
	b.WriteString("***************\n")
	fmt.Fprintf(&b, "File: '%s'\n", res.Path)
	fmt.Fprintf(&b, "Valid: %t\n", res.Valid)
	if !res.Valid {
		b.WriteString("Errors:\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	b.WriteString("***************\n")

	_, err := io.WriteString(w, b.String())
	return err
}
