// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"doc-qa-api/internal/domain/entity"
)

type SessionRepository struct {
	client *Client
}

func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.Session
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) List(ctx context.Context, limit int) ([]*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.List")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	db := getDB(ctx, r.client.db)
	var sessions []*entity.Session
	if err := db.Order("created_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) AppendTurn(ctx context.Context, turn *entity.SessionTurn) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.AppendTurn")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append session turn: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]*entity.SessionTurn, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.ListTurns")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	db := getDB(ctx, r.client.db)
	var turns []*entity.SessionTurn
	if err := db.Where("session_id = ?", sessionID).Order("created_at ASC").Limit(limit).Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list session turns: %w", err)
	}
	return turns, nil
}
