package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// Compression selects the export container.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gz"
	CompressionXZ   Compression = "xz"
)

// ParseCompression accepts none, gz/gzip and xz.
func ParseCompression(value string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGzip, nil
	case "xz":
		return CompressionXZ, nil
	default:
		return "", fmt.Errorf("unknown compression %q", value)
	}
}

// LogFileName returns Install_<timestamp>.log with the compression suffix.
func LogFileName(at time.Time, c Compression) string {
	name := domain.InstallLogPrefix + at.Format(domain.LogFileTimestampFormat) + ".log"
	switch c {
	case CompressionGzip:
		return name + ".gz"
	case CompressionXZ:
		return name + ".xz"
	default:
		return name
	}
}

// WriteLogs writes lines newline separated, compressed as requested.
func WriteLogs(w io.Writer, lines []string, c Compression) error {
	var (
		sink   io.Writer = w
		closer io.Closer
	)
	switch c {
	case CompressionGzip:
		gz := pgzip.NewWriter(w)
		sink, closer = gz, gz
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		sink, closer = xw, xw
	}

	buf := bufio.NewWriter(sink)
	if _, err := buf.WriteString(strings.Join(lines, "\n")); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

// ExportLogs writes lines to a new log file in dir and returns its path.
func ExportLogs(dir string, lines []string, c Compression, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, LogFileName(at, c))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.SecureFilePermissions)
	if err != nil {
		return "", fmt.Errorf("create log file: %w", err)
	}
	if err := WriteLogs(f, lines, c); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write logs: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close log file: %w", err)
	}
	return path, nil
}
