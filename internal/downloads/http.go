package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/utils"
)

var ErrNotFound = errors.New("URL not found (404)")

type HTTPBackend struct {
	client *utils.SplitHTTPClient
}

func NewHTTPBackend(client *utils.SplitHTTPClient) *HTTPBackend {
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Fetch(ctx context.Context, link, dest string, progress func(downloaded, total int64)) (int64, error) {
	outFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("error creating output file: %v", err)
	}
	defer outFile.Close()

	resp, err := b.client.Get(ctx, link)
	if err != nil {
		return 0, fmt.Errorf("error executing GET request: %v", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	total := resp.ContentLength
	log.Debug().Str("op", "downloads/http").Msgf("GET %s (%d bytes advertised)", link, total)

	var downloaded int64
	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return downloaded, fmt.Errorf("error writing to output file: %v", writeErr)
			}
			downloaded += int64(bytesRead)
			progress(downloaded, total)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return downloaded, fmt.Errorf("error reading response body: %v", readErr)
		}
	}
	if total > 0 && downloaded != total {
		return downloaded, fmt.Errorf("short download: got %d of %d bytes", downloaded, total)
	}
	return downloaded, outFile.Sync()
}
