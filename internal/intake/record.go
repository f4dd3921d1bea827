package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// RequesterNotFound is written when no attribution cell was found.
const RequesterNotFound = "(not found)"

const recordSeparator = "--- Requested by ---"

// Recorder persists a ResultRecord and returns where it went.
type Recorder interface {
	Record(rec model.ResultRecord) (string, error)
}

// FileRecorder writes one text file per record, named by action time.
// Existing files are never overwritten.
type FileRecorder struct {
	Dir string
}

func (r FileRecorder) Record(rec model.ResultRecord) (string, error) {
	dir := r.Dir
	if dir == "" {
		dir = "out"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("requester_%d.txt", rec.ActedAt.UnixMilli()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	if _, err := f.WriteString(FormatRecord(rec)); err != nil {
		f.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	return path, f.Close()
}

// FormatRecord renders the four-line record body.
func FormatRecord(rec model.ResultRecord) string {
	requester := strings.TrimSpace(rec.Requester)
	if requester == "" {
		requester = RequesterNotFound
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", rec.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\n", rec.MessageID)
	b.WriteString(recordSeparator + "\n")
	b.WriteString(requester + "\n")
	return b.String()
}
