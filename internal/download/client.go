package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ProgressFunc reports transfer progress. expected may be <= 0 when the
// server does not announce a length.
type ProgressFunc func(written, expected int64)

// TransferClient performs one bulk file transfer to a destination path.
type TransferClient interface {
	Download(ctx context.Context, srcURL, destPath string, onProgress ProgressFunc) error
}

// HTTPTransferClient downloads over plain HTTP GET, resuming a partial
// file with a Range request when the server cooperates. Writes go to a
// .part file renamed into place on success so a torn download never looks
// complete.
type HTTPTransferClient struct {
	Client *http.Client
}

// NewHTTPTransferClient builds a client with no overall timeout; large
// model files can take arbitrarily long. Dial and TLS timeouts come from
// http.DefaultTransport.
func NewHTTPTransferClient() *HTTPTransferClient {
	return &HTTPTransferClient{Client: &http.Client{}}
}

func (c *HTTPTransferClient) Download(ctx context.Context, srcURL, destPath string, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("ensure destination dir: %w", err)
	}

	partPath := destPath + ".part"
	var offset int64
	if fi, err := os.Stat(partPath); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("start transfer: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range; start over.
		offset = 0
	case http.StatusPartialContent:
		// resuming at offset
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}

	expected := offset
	if resp.ContentLength > 0 {
		expected += resp.ContentLength
	}

	_, copyErr := copyWithProgress(ctx, f, resp.Body, offset, expected, onProgress)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("close destination: %w", closeErr)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

// progressInterval throttles callback frequency so per-chunk updates do
// not flood subscribers on fast links.
const progressInterval = 100 * time.Millisecond

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, offset, expected int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, 256*1024)
	written := offset
	last := time.Time{}
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write chunk: %w", werr)
			}
			written += int64(n)
			if onProgress != nil && (time.Since(last) >= progressInterval || written == expected) {
				onProgress(written, expected)
				last = time.Now()
			}
		}
		if rerr == io.EOF {
			if onProgress != nil {
				onProgress(written, expected)
			}
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read body: %w", rerr)
		}
	}
}
