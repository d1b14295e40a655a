package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/language"

	scriberr "github.com/otoitsuki/scribecore/errors"
	"github.com/otoitsuki/scribecore/httpx"
)

// RecordingSession is one backend recording session.
type RecordingSession struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	StartedAt time.Time `json:"started_at"`
}

// APIClient talks to the backend's recording-session endpoints.
type APIClient struct {
	client *httpx.Client
	logger *slog.Logger
}

// APIClientConfig holds configuration for APIClient.
type APIClientConfig struct {
	// BaseURL is the API root (e.g. "http://host:8000/api"). Ignored
	// when Client is set.
	BaseURL string

	// Client overrides the HTTP client.
	Client *httpx.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewAPIClient creates a session API client.
func NewAPIClient(cfg APIClientConfig) *APIClient {
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(httpx.ClientConfig{
			BaseURL:     cfg.BaseURL,
			ServiceName: "session-api",
		})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &APIClient{client: cfg.Client, logger: cfg.Logger}
}

// Create registers a new recording session for the given language. When
// the backend does not assign an id, a local one is generated so the rest
// of the pipeline always has a session key.
func (c *APIClient) Create(ctx context.Context, lang language.Tag) (*RecordingSession, error) {
	body := map[string]string{"language": lang.String()}

	var sess RecordingSession
	if err := c.client.Post(ctx, "/sessions", body, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if sess.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sess.ID = id
		c.logger.Debug("backend assigned no session id, using local id", "session_id", id)
	}
	if sess.Language == "" {
		sess.Language = lang.String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	return &sess, nil
}

// Finish marks a recording session as ended on the backend.
func (c *APIClient) Finish(ctx context.Context, sessionID string) error {
	err := c.client.Post(ctx, fmt.Sprintf("/sessions/%s/finish", sessionID), nil, nil)
	if httpx.IsNotFound(err) {
		return fmt.Errorf("%w: %s", scriberr.ErrSessionNotFound, sessionID)
	}
	return err
}

// Delete discards a recording session and its backend-side data.
func (c *APIClient) Delete(ctx context.Context, sessionID string) error {
	err := c.client.Delete(ctx, fmt.Sprintf("/sessions/%s", sessionID))
	if httpx.IsNotFound(err) {
		return fmt.Errorf("%w: %s", scriberr.ErrSessionNotFound, sessionID)
	}
	return err
}
