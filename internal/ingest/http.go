package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AngelCh415/perfmerge/internal/utils"
)

// GetWithRetry downloads a remote export. Transport errors and 5xx are
// retried; any other non-2xx status fails at once.
func GetWithRetry(ctx context.Context, c HTTPClient, b utils.Backoff, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty url")
	}
	var body []byte
	err := b.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return utils.Permanent(err)
		}
		resp, err := c.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, string(snippet))
			if resp.StatusCode < 500 {
				return utils.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
