// internal/infra/report/csv.go
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"password_expiry_notifier/internal/domain/notification"
)

// Encoding names the byte encoding of the written report.
type Encoding string

const (
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF8BOM Encoding = "utf-8-bom" // What spreadsheet tools expect to auto-detect UTF-8
	EncodingUTF16LE Encoding = "utf-16le"
)

const (
	delimiter       = ';'
	dateLayout      = "02.01.2006 15:04"
	timestampLayout = "02.01.2006 15:04:05"
)

// Header is the column order of the report.
var Header = []string{
	"AccountID", "DisplayName", "Email", "Status", "Template", "Audience",
	"DaysBeforeExpire", "ExpiresOn", "Subject", "Recipients", "Error", "Timestamp",
}

// ParseEncoding validates a configured encoding name; empty means UTF-8.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EncodingUTF8:
		return EncodingUTF8, nil
	case EncodingUTF8BOM, EncodingUTF16LE:
		return e, nil
	default:
		return "", fmt.Errorf("unsupported report encoding %q", s)
	}
}

// Writer serializes run outcomes into a semicolon-delimited file in Dir.
type Writer struct {
	Dir      string
	Encoding Encoding
}

func NewWriter(dir string, enc Encoding) *Writer {
	return &Writer{Dir: dir, Encoding: enc}
}

// FileName is the report name for a run: PasswordExpiryReport_<yyyyMMdd-HHmmss>_<run id prefix>.csv
func FileName(runID uuid.UUID, started time.Time) string {
	return fmt.Sprintf("PasswordExpiryReport_%s_%s.csv", started.Format("20060102-150405"), runID.String()[:8])
}

// Write creates the report file and returns its path.
func (w *Writer) Write(runID uuid.UUID, started time.Time, outcomes []notification.Outcome) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(w.Dir, FileName(runID, started))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, w.Encoding, outcomes); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}
	return path, nil
}

// Encode writes the header and one row per outcome to out.
func Encode(out io.Writer, enc Encoding, outcomes []notification.Outcome) error {
	var encoder *encoding.Encoder
	switch enc {
	case EncodingUTF8BOM:
		encoder = unicode.UTF8BOM.NewEncoder()
	case EncodingUTF16LE:
		encoder = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	}

	var tw io.WriteCloser
	if encoder != nil {
		tw = transform.NewWriter(out, encoder)
		out = tw
	}

	cw := csv.NewWriter(out)
	cw.Comma = delimiter
	cw.UseCRLF = true

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, o := range outcomes {
		if err := cw.Write(row(o)); err != nil {
			return fmt.Errorf("failed to write report row for %s: %w", o.AccountID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}

	if tw != nil {
		if err := tw.Close(); err != nil {
			return fmt.Errorf("failed to finish report encoding: %w", err)
		}
	}
	return nil
}

func row(o notification.Outcome) []string {
	days := ""
	if o.DaysBeforeExpire != nil {
		days = strconv.Itoa(*o.DaysBeforeExpire)
	}
	expires := ""
	if !o.ExpiresOn.IsZero() {
		expires = o.ExpiresOn.Format(dateLayout)
	}
	return []string{
		o.AccountID,
		o.DisplayName,
		o.Email,
		string(o.Status),
		string(o.Template),
		string(o.Audience),
		days,
		expires,
		o.Subject,
		strings.Join(o.Recipients, ","),
		o.Error,
		o.Timestamp.Format(timestampLayout),
	}
}
