package cli

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devhub/devhub-go/adapter/remote"
	"github.com/devhub/devhub-go/app"
	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/memory"
)

// session answers questions either in process or through a DevHub server.
type session interface {
	ID() string
	Ask(ctx context.Context, question string) (*devhub.QueryResult, error)
	History(ctx context.Context, limit int) (string, error)
	// Reset forgets the current history and starts a new session id.
	Reset(ctx context.Context) error
	Close() error
}

func openSession(ctx context.Context, server, sessionID string, timeout time.Duration, ff FaultFlags) (session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if server != "" {
		client, err := remote.NewClient(server, timeout)
		if err != nil {
			return nil, err
		}
		return &remoteSession{client: client, id: sessionID}, nil
	}

	cfg, err := ff.load()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &localSession{app: a, id: sessionID}, nil
}

type localSession struct {
	app *app.App
	id  string
}

func (s *localSession) ID() string { return s.id }

func (s *localSession) Ask(ctx context.Context, question string) (*devhub.QueryResult, error) {
	result, err := s.app.Orchestrator.Query(ctx, question)
	if err != nil {
		return nil, err
	}
	if err := memory.StoreExchange(ctx, s.app.Memory, s.id, question, result); err != nil {
		s.app.Logger.Warn("failed to record session history", "session_id", s.id, "error", err)
	}
	return result, nil
}

func (s *localSession) History(ctx context.Context, limit int) (string, error) {
	return memory.Summarize(ctx, s.app.Memory, s.id, limit)
}

func (s *localSession) Reset(ctx context.Context) error {
	if err := s.app.Memory.Clear(ctx, s.id); err != nil {
		return err
	}
	s.id = uuid.NewString()
	return nil
}

func (s *localSession) Close() error {
	return s.app.Close(context.Background())
}

type remoteSession struct {
	client *remote.Client
	id     string
}

func (s *remoteSession) ID() string { return s.id }

func (s *remoteSession) Ask(ctx context.Context, question string) (*devhub.QueryResult, error) {
	return s.client.QueryInSession(ctx, s.id, question)
}

func (s *remoteSession) History(ctx context.Context, limit int) (string, error) {
	messages, err := s.client.History(ctx, s.id, limit)
	if err != nil {
		return "", err
	}
	return memory.FormatHistory(messages), nil
}

// Reset starts a fresh session; the server keeps the old one until it expires.
func (s *remoteSession) Reset(context.Context) error {
	s.id = uuid.NewString()
	return nil
}

func (s *remoteSession) Close() error { return nil }
