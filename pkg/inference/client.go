// Package inference talks to an HTTP object detection service (for example a
// YOLO model behind a small web server). The image is uploaded as multipart
// form data together with the confidence floor; the service answers with
// pixel-space boxes.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/crop-sorter/pkg/detection"
	"github.com/menta2k/crop-sorter/pkg/types"
)

// Client is a detection.Detector backed by a remote inference service
type Client struct {
	predictURL string
	httpClient *http.Client
}

// Prediction is one detection as returned by the service
type Prediction struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Class      string  `json:"class,omitempty"`
}

type predictResponse struct {
	Detections []Prediction `json:"detections"`
}

var _ detection.Detector = (*Client)(nil)

// NewClient creates a client posting to predictURL
func NewClient(predictURL string, timeout time.Duration) (*Client, error) {
	if !strings.HasPrefix(predictURL, "http://") && !strings.HasPrefix(predictURL, "https://") {
		return nil, fmt.Errorf("unsupported inference URL %q: expected http or https", predictURL)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		predictURL: predictURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Detect uploads the image and returns the service's detections in the order
// received, dropping any below threshold
func (c *Client) Detect(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error) {
	body, contentType, err := buildForm(imagePath, threshold)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	dets := make([]types.Detection, 0, len(result.Detections))
	for i, p := range result.Detections {
		d := types.Detection{
			Box:        types.Box{X1: p.X1, Y1: p.Y1, X2: p.X2, Y2: p.Y2},
			Confidence: p.Confidence,
			ClassID:    p.ClassID,
			Label:      p.Class,
		}
		if d.Box.X1 >= d.Box.X2 || d.Box.Y1 >= d.Box.Y2 || d.ClassID < 0 {
			return nil, fmt.Errorf("detection %d: invalid box or class %+v", i, p)
		}
		if !(d.Confidence >= 0 && d.Confidence <= 1) {
			return nil, fmt.Errorf("detection %d: confidence %v outside [0, 1]", i, p.Confidence)
		}
		dets = append(dets, d)
	}
	return detection.Floor(dets, threshold), nil
}

// CheckHealth verifies the service answers on <url>/health
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(c.predictURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func buildForm(imagePath string, threshold float64) (io.Reader, string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
		return nil, "", fmt.Errorf("write conf field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// healthURL replaces the last path element of the predict URL with /health
func healthURL(predictURL string) string {
	u := strings.TrimSuffix(predictURL, "/")
	host := strings.Index(u, "://") + len("://")
	if i := strings.LastIndex(u, "/"); i >= host {
		u = u[:i]
	}
	return u + "/health"
}
