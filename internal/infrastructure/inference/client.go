// Package inference — HTTP-клиент сервиса инференса CLIP-моделей.
// Сервис держит модели в памяти; клиент управляет их загрузкой и
// выполняет эмбеддинг изображений и текста.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DRSN-tech/visual-search/internal/clip"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

const defaultTimeout = 120 * time.Second

// Config — настройки подключения к сервису инференса.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MaxConcurrent ограничивает одновременные запросы инференса;
	// 0 — без ограничения.
	MaxConcurrent int
}

// Client реализует clip.Backend поверх HTTP API сервиса инференса.
// Ретраев нет: ошибка уходит вызывающему, который решает судьбу элемента.
type Client struct {
	baseURL string
	http    *http.Client
	sem     chan struct{}
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		sem:     sem,
	}
}

// LoadModel просит сервис загрузить модель и возвращает сессию для неё.
func (c *Client) LoadModel(ctx context.Context, modelID string) (clip.Session, error) {
	const op = "inference.Client.LoadModel"

	if err := c.do(ctx, http.MethodPost, "/v1/models/"+modelID+"/load", nil, nil); err != nil {
		return nil, e.Wrap(op, err)
	}
	return &session{client: c, modelID: modelID}, nil
}

// session — загруженная на сервисе модель.
type session struct {
	client  *Client
	modelID string
}

type embedImageRequest struct {
	Model  string `json:"model"`
	Image  string `json:"image"` // base64
	Prompt string `json:"prompt,omitempty"`
}

type embedTextRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (s *session) EmbedImage(ctx context.Context, image []byte, prompt string) ([]float32, error) {
	const op = "inference.session.EmbedImage"

	req := embedImageRequest{
		Model:  s.modelID,
		Image:  base64.StdEncoding.EncodeToString(image),
		Prompt: prompt,
	}

	var resp embedResponse
	if err := s.client.do(ctx, http.MethodPost, "/v1/embeddings/image", req, &resp); err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyVector)
	}
	return resp.Embedding, nil
}

func (s *session) EmbedText(ctx context.Context, text string) ([]float32, error) {
	const op = "inference.session.EmbedText"

	var resp embedResponse
	if err := s.client.do(ctx, http.MethodPost, "/v1/embeddings/text", embedTextRequest{Model: s.modelID, Text: text}, &resp); err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyVector)
	}
	return resp.Embedding, nil
}

// Close выгружает модель на сервисе, освобождая память устройства.
func (s *session) Close(ctx context.Context) error {
	const op = "inference.session.Close"

	if err := s.client.do(ctx, http.MethodDelete, "/v1/models/"+s.modelID, nil, nil); err != nil {
		return e.Wrap(op, err)
	}
	return nil
}

type normalizeColorRequest struct {
	Color string `json:"color"`
}

type normalizeColorResponse struct {
	Canonical string `json:"canonical"`
}

// NormalizeColor — семантический фолбэк нормализации цвета через LLM
// на стороне сервиса инференса.
func (c *Client) NormalizeColor(ctx context.Context, cleaned string) (string, error) {
	const op = "inference.Client.NormalizeColor"

	var resp normalizeColorResponse
	if err := c.do(ctx, http.MethodPost, "/v1/colors/normalize", normalizeColorRequest{Color: cleaned}, &resp); err != nil {
		return "", e.Wrap(op, err)
	}
	return resp.Canonical, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
