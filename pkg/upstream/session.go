package upstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/citegate/citegate/pkg/domain"
)

// SessionCreator mints new upstream sessions. *Client implements it.
type SessionCreator interface {
	CreateSession(ctx context.Context, dataStore, userPseudoID string) (string, error)
}

// SessionManager resolves an inbound session reference to a usable session
// identifier, creating one upstream when the reference is empty.
type SessionManager struct {
	upstream SessionCreator
	logger   *slog.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(upstream SessionCreator, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{upstream: upstream, logger: logger}
}

// Resolve returns ref.Name unchanged when present; the upstream surfaces an
// error later if the reference is stale. An empty name triggers session
// creation, which is a hard failure for the whole request when it fails.
func (m *SessionManager) Resolve(ctx context.Context, dataStore string, ref domain.SessionRef) (string, error) {
	if ref.Name != "" {
		return ref.Name, nil
	}

	session, err := m.upstream.CreateSession(ctx, dataStore, ref.UserPseudoID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	m.logger.Debug("created upstream session",
		"data_store", dataStore,
		"session", session,
	)
	return session, nil
}
