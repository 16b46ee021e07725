package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/Bens368/IGIA/internal/domain"
)

// maxDocumentSize is a soft limit, larger flyers are only logged.
const maxDocumentSize = 100 * 1024 * 1024

// Validator provides input validation for documents before rendering
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateDocument checks that a document has a name and a readable source
func (v *Validator) ValidateDocument(doc domain.Document) error {
	if strings.TrimSpace(doc.Name) == "" {
		return domain.ValidationError("document name cannot be empty", nil)
	}

	if len(doc.Content) > 0 {
		return nil
	}

	if strings.TrimSpace(doc.Path) == "" {
		return domain.ValidationError(fmt.Sprintf("document %s has neither content nor path", doc.Name), nil)
	}

	info, err := os.Stat(doc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", doc.Path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", doc.Path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", doc.Path), nil)
	}

	return nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}

// Oversized reports whether a document exceeds the soft size limit
func (v *Validator) Oversized(doc domain.Document) bool {
	if len(doc.Content) > 0 {
		return len(doc.Content) > maxDocumentSize
	}
	info, err := os.Stat(doc.Path)
	return err == nil && info.Size() > maxDocumentSize
}
