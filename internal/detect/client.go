package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrServiceFailure means the detection service answered but reported a
// failure of its own. The job layer treats it as retryable.
var ErrServiceFailure = errors.New("detection service failure")

// BoundingBox in pixel coordinates of the source image.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one detection as reported by the service. Encoding may be absent;
// Confidence zero means the service did not score the detection. Thumbnail
// holds decoded JPEG crop bytes when the service sends one.
type Face struct {
	BoundingBox BoundingBox
	Confidence  float64
	Encoding    []float32
	Thumbnail   []byte
}

// Result of a detection call. Faces preserves detection order.
type Result struct {
	Faces []Face
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Path string `json:"path"`
}

type faceResponse struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
	Encoding    []float32   `json:"encoding"`
	Thumbnail   string      `json:"thumbnail"`
}

type detectResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Faces   []faceResponse `json:"faces"`
}

// Detect asks the service to find faces in the image at imageRef. imageRef is
// the storage key of the original; the service shares access to the blob
// store. The client never retries, redelivery handles transient failures.
func (c *Client) Detect(ctx context.Context, imageRef string) (*Result, error) {
	body, err := json.Marshal(detectRequest{Path: imageRef})
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect request: unexpected status %d", resp.StatusCode)
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	if !dr.Success {
		return nil, fmt.Errorf("%w: %s", ErrServiceFailure, dr.Message)
	}

	result := &Result{Faces: make([]Face, 0, len(dr.Faces))}
	for _, f := range dr.Faces {
		face := Face{
			BoundingBox: f.BoundingBox,
			Confidence:  f.Confidence,
			Encoding:    f.Encoding,
		}
		if f.Thumbnail != "" {
			if crop, err := base64.StdEncoding.DecodeString(f.Thumbnail); err == nil {
				face.Thumbnail = crop
			}
		}
		result.Faces = append(result.Faces, face)
	}
	return result, nil
}

// Health probes the service for readiness checks.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health request: unexpected status %d", resp.StatusCode)
	}
	return nil
}
