package validation

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/asg67/finmanager/backend/src/logger"
)

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
var AllowedClientContentTypes = map[string]bool{
	"application/pdf":   true,
	"application/x-pdf": true,
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string) error {
	if allowed, exists := AllowedClientContentTypes[strings.ToLower(contentType)]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for statement upload", contentType)
	}
	return nil
}

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// ValidatePDFContent checks the actual file content signature (magic bytes)
// so a renamed executable cannot pass as a bank statement.
func ValidatePDFContent(file io.ReadSeeker) error {
	if file == nil {
		return fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 1024)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file for content type checking: %w", err)
	}

	// Reset the file read pointer so the upload path can read the full file.
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}

	if n == 0 {
		return fmt.Errorf("file is empty")
	}

	if !bytes.HasPrefix(buffer[:n], pdfMagic) {
		logger.L.Warn("File rejected: missing PDF signature")
		return fmt.Errorf("file content is not a valid PDF document")
	}

	logger.L.Debug("File content validated as PDF")
	return nil
}
