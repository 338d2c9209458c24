package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultZeroShotModel = "joeddav/xlm-roberta-large-xnli"

	hfClientTimeout     = 60 * time.Second
	hfErrorBodyMaxBytes = 512
)

// HFClient calls a Hugging Face compatible zero-shot classification endpoint
// at <baseURL>/models/<model>.
type HFClient struct {
	endpoint string
	token    string
	client   *http.Client
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
	MultiLabel         bool     `json:"multi_label"`
}

type hfSequenceResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

type hfLabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewHFClient builds a client. An empty model selects DefaultZeroShotModel.
func NewHFClient(baseURL string, token string, model string) (*HFClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is empty")
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultZeroShotModel
	}

	return &HFClient{
		endpoint: baseURL + "/models/" + model,
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: hfClientTimeout},
	}, nil
}

func (c *HFClient) ZeroShot(
	ctx context.Context,
	text string,
	labels []string,
	hypothesisTemplate string,
) (Ranking, error) {
	payload, err := json.Marshal(hfRequest{
		Inputs: text,
		Parameters: hfParameters{
			CandidateLabels:    labels,
			HypothesisTemplate: hypothesisTemplate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > hfErrorBodyMaxBytes {
			body = body[:hfErrorBodyMaxBytes]
		}

		return nil, fmt.Errorf("unexpected status (status = %d, body = %s)", resp.StatusCode, body)
	}

	return decodeRanking(body)
}

// decodeRanking accepts both {"labels": [...], "scores": [...]} and
// [{"label": ..., "score": ...}, ...].
func decodeRanking(body []byte) (Ranking, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("response is empty")
	}

	if trimmed[0] == '[' {
		var pairs []hfLabelScore
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("decode label list: %w", err)
		}

		ranking := make(Ranking, 0, len(pairs))
		for _, p := range pairs {
			ranking = append(ranking, LabelScore(p))
		}

		return ranking, nil
	}

	var seq hfSequenceResponse
	if err := json.Unmarshal(trimmed, &seq); err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}

	if len(seq.Labels) != len(seq.Scores) {
		return nil, fmt.Errorf("labels and scores differ in length (labels = %d, scores = %d)",
			len(seq.Labels), len(seq.Scores))
	}

	ranking := make(Ranking, 0, len(seq.Labels))
	for i, label := range seq.Labels {
		ranking = append(ranking, LabelScore{Label: label, Score: seq.Scores[i]})
	}

	return ranking, nil
}
