package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrIrrelevantDocument = errors.New("irrelevant document")
	ErrExtractionFailure  = errors.New("extraction failure")
	ErrRetrievalFailure   = errors.New("retrieval failure")
	ErrGenerationFailure  = errors.New("generation failure")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IrrelevantDocumentError reports a rejected upload together with the
// assessment that explains the rejection.
type IrrelevantDocumentError struct {
	Filename   string
	Assessment RelevanceAssessment
}

func (e *IrrelevantDocumentError) Error() string {
	if e == nil {
		return ErrIrrelevantDocument.Error()
	}
	msg := fmt.Sprintf("%s: %s (score %d)", ErrIrrelevantDocument.Error(), e.Filename, e.Assessment.Score)
	if len(e.Assessment.Warnings) > 0 {
		msg += ": " + strings.Join(e.Assessment.Warnings, "; ")
	}
	return msg
}

func (e *IrrelevantDocumentError) Is(target error) bool {
	return target == ErrIrrelevantDocument
}
