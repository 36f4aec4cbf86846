package domain

import (
	"path/filepath"
	"strings"
)

// ValidateDocumentName checks a document filename before it is joined onto
// the PDF directory. Names must stay inside that directory.
func ValidateDocumentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("filename", name, ErrMalformedInput)
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return NewValidationError("filename", name, ErrMalformedInput)
	}
	return nil
}

// ValidateForQuery checks that a query can be formed from the Input.
func ValidateForQuery(in Input) error {
	if strings.TrimSpace(in.Persona.Role) == "" {
		return NewValidationError("persona.role", in.Persona.Role, ErrMalformedInput)
	}
	if strings.TrimSpace(in.JobToBeDone.Task) == "" {
		return NewValidationError("job_to_be_done.task", in.JobToBeDone.Task, ErrMalformedInput)
	}
	return nil
}
