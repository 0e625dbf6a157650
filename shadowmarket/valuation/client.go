// Package valuation scores and tags submitted content through external
// inference endpoints. Requests funnel through a single-worker queue so
// the upstream models are never hit concurrently.
package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	// Confidence floors for keeping a prediction. Character tags need a
	// higher bar because a wrong character name skews pricing hard.
	GeneralConfidenceMin   = 0.35
	CharacterConfidenceMin = 0.5

	// MaxGeneralTags caps how many general tags a single item records.
	MaxGeneralTags = 20
)

// Prediction is one labelled confidence from the tagger.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the scoring and tagging models.
type Client interface {
	Score(ctx context.Context, imageData []byte) (float64, error)
	Tags(ctx context.Context, imageData []byte) (general, characters []Prediction, err error)
}

// HTTPClient posts image bytes to two inference endpoints.
type HTTPClient struct {
	scoreURL string
	tagURL   string
	token    string
	client   *http.Client
}

func NewHTTPClient(scoreURL, tagURL, token string) *HTTPClient {
	return &HTTPClient{
		scoreURL: scoreURL,
		tagURL:   tagURL,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, url string, imageData []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference returned status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode inference response: %w", err)
	}
	return nil
}

func (c *HTTPClient) Score(ctx context.Context, imageData []byte) (float64, error) {
	var out struct {
		Score float64 `json:"score"`
	}
	if err := c.post(ctx, c.scoreURL, imageData, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

func (c *HTTPClient) Tags(ctx context.Context, imageData []byte) ([]Prediction, []Prediction, error) {
	var out struct {
		General    []Prediction `json:"general"`
		Characters []Prediction `json:"characters"`
	}
	if err := c.post(ctx, c.tagURL, imageData, &out); err != nil {
		return nil, nil, err
	}
	return out.General, out.Characters, nil
}

// FilterPredictions reduces raw tagger output to the labels an item
// records: general tags above the floor sorted by confidence, capped,
// and character tags above their own floor.
func FilterPredictions(general, characters []Prediction) (tags, chars []string) {
	gen := make([]Prediction, 0, len(general))
	for _, p := range general {
		if p.Confidence > GeneralConfidenceMin {
			gen = append(gen, p)
		}
	}
	sort.SliceStable(gen, func(i, j int) bool { return gen[i].Confidence > gen[j].Confidence })
	if len(gen) > MaxGeneralTags {
		gen = gen[:MaxGeneralTags]
	}
	tags = make([]string, len(gen))
	for i, p := range gen {
		tags[i] = p.Label
	}

	ch := make([]Prediction, 0, len(characters))
	for _, p := range characters {
		if p.Confidence > CharacterConfidenceMin {
			ch = append(ch, p)
		}
	}
	sort.SliceStable(ch, func(i, j int) bool { return ch[i].Confidence > ch[j].Confidence })
	chars = make([]string, len(ch))
	for i, p := range ch {
		chars[i] = p.Label
	}
	return tags, chars
}
