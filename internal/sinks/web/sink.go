package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/streamsense/observability/internal/models"
)

// Sink posts export batches as gzip-compressed JSON to an external
// time-series endpoint.
type Sink struct {
	client *resty.Client
}

// NewSink creates a Sink using the given REST client. The client's base URL
// points at the time-series backend.
func NewSink(client *resty.Client) *Sink {
	return &Sink{client: client}
}

// Send ships one batch via HTTP POST to the "/api/v1/points" endpoint. A
// non-2xx response is an error so the exporter's retry policy applies.
func (s *Sink) Send(ctx context.Context, records []models.ExportRecord) error {
	jsonData, err := json.Marshal(records)
	if err != nil {
		return err
	}

	compressed, err := compressGzip(jsonData)
	if err != nil {
		return err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "gzip").
		SetBody(compressed).
		Post("/api/v1/points")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("sink rejected batch: %s", resp.Status())
	}
	return nil
}

// compressGzip compresses input bytes using gzip.
func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	if _, err := gzw.Write(data); err != nil {
		_ = gzw.Close()
		return nil, err
	}
	if err := gzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
