// Package metadata reads the mirror's vanced.json document.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/utils"
)

const DocumentName = "vanced.json"

var ErrNoVersion = errors.New("metadata has no version field")

// ObjectReader fetches whole documents from non-HTTP mirrors.
type ObjectReader interface {
	ReadObject(ctx context.Context, link string) ([]byte, error)
}

type Client struct {
	http *utils.SplitHTTPClient
	s3   ObjectReader
}

func NewClient(httpClient *utils.SplitHTTPClient, s3 ObjectReader) *Client {
	return &Client{http: httpClient, s3: s3}
}

// Version returns the version field of {base}/vanced.json.
func (c *Client) Version(ctx context.Context, base string) (string, error) {
	doc, err := c.fetch(ctx, strings.TrimSuffix(base, "/")+"/"+DocumentName)
	if err != nil {
		return "", err
	}
	return Field(doc, "version")
}

func (c *Client) fetch(ctx context.Context, link string) (map[string]any, error) {
	var body []byte
	if strings.HasPrefix(link, "s3://") {
		if c.s3 == nil {
			return nil, fmt.Errorf("no s3 reader configured for %s", link)
		}
		data, err := c.s3.ReadObject(ctx, link)
		if err != nil {
			return nil, err
		}
		body = data
	} else {
		resp, err := c.http.Get(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("error fetching metadata: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("metadata request failed with status code: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading metadata: %v", err)
		}
		body = data
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("error decoding metadata: %v", err)
	}
	log.Debug().Str("op", "metadata/metadata").Msgf("fetched %s", link)
	return doc, nil
}

// Field renders a top-level scalar of doc as a string. Whole numbers lose
// their decimal point so 19 stays "19".
func Field(doc map[string]any, name string) (string, error) {
	raw, ok := doc[name]
	if !ok || raw == nil {
		if name == "version" {
			return "", ErrNoVersion
		}
		return "", fmt.Errorf("metadata has no %s field", name)
	}
	switch value := raw.(type) {
	case string:
		if value == "" && name == "version" {
			return "", ErrNoVersion
		}
		return value, nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(value), nil
	}
	return "", fmt.Errorf("metadata field %s is not a scalar", name)
}
