// Package scanner adapts clamd as the pipeline's malware-scanning
// capability. Any compliant scanner can replace it behind port.Scanner.
package scanner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	clamd "github.com/dutchcoders/go-clamd"
)

const identity = "clamav"

// ClamAV talks to a clamd daemon over its native protocol (INSTREAM).
type ClamAV struct {
	client  *clamd.Clamd
	timeout time.Duration
}

var _ port.Scanner = (*ClamAV)(nil)

// NewClamAV connects to clamd at addr, e.g. "tcp://localhost:3310".
func NewClamAV(addr string, timeout time.Duration) *ClamAV {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClamAV{
		client:  clamd.NewClamd(addr),
		timeout: timeout,
	}
}

func (s *ClamAV) Scan(ctx context.Context, filePath string) (*port.ScanResult, error) {
	// A daemon that cannot even be pinged is an availability problem, not a
	// scan failure.
	if err := s.client.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrScannerUnavailable, err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(f, abort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrScannerUnavailable, err)
	}

	select {
	case res, ok := <-results:
		if !ok || res == nil {
			return nil, fmt.Errorf("scanner returned no verdict")
		}
		return s.toResult(res)
	case <-time.After(s.timeout):
		return nil, port.ErrScanTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ClamAV) toResult(res *clamd.ScanResult) (*port.ScanResult, error) {
	switch res.Status {
	case clamd.RES_OK:
		return &port.ScanResult{Clean: true, Scanner: identity}, nil
	case clamd.RES_FOUND:
		return &port.ScanResult{Clean: false, Scanner: identity, Signature: res.Description}, nil
	default:
		return nil, fmt.Errorf("scanner error: %s", res.Description)
	}
}
