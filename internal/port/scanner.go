package port

import (
	"context"
	"errors"
)

var (
	// ErrScannerUnavailable means the scanning capability cannot be reached
	// at all. Callers degrade to a skipped scan instead of failing the
	// upload.
	ErrScannerUnavailable = errors.New("virus scanner unavailable")

	// ErrScanTimeout means the scanner accepted the file but produced no
	// verdict in time. Transient; eligible for job-level retry.
	ErrScanTimeout = errors.New("virus scan timed out")
)

// ScanResult is the verdict for one file.
type ScanResult struct {
	Clean bool
	// Scanner identifies the scanning capability that produced the verdict.
	Scanner string
	// Signature names the detected threat when Clean is false.
	Signature string
}

// Scanner submits an assembled file to a malware-scanning capability. Any
// compliant implementation is substitutable.
type Scanner interface {
	Scan(ctx context.Context, filePath string) (*ScanResult, error)
}
