package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/saartech/quattropole-assistant/app/observability/metrics"
	"github.com/saartech/quattropole-assistant/internal/types"
)

// PGXPool is the subset of pgxpool.Pool the repository uses. pgxmock
// satisfies it, so tests run against the real SQL.
type PGXPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	CreateConversation(ctx context.Context, mapDetails types.MapDetails) (*types.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, message types.Message) (*types.Message, error)
	UpdateMapDetails(ctx context.Context, conversationID uuid.UUID, details types.MapDetails) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewRepositoryImpl(pgpool PGXPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *RepositoryImpl) CreateConversation(ctx context.Context, mapDetails types.MapDetails) (*types.Conversation, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "CreateConversation", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "conversations"),
	))
	defer span.End()

	detailsJSON, err := json.Marshal(mapDetails)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal map details: %w", err)
	}

	conv := &types.Conversation{
		Messages:   []types.Message{},
		MapDetails: mapDetails,
	}
	err = r.pgpool.QueryRow(ctx, `
        INSERT INTO conversations (map_details)
        VALUES ($1)
        RETURNING id, created_at
    `, detailsJSON).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert conversation")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	span.SetAttributes(attribute.String("conversation.id", conv.ID.String()))
	span.SetStatus(codes.Ok, "Conversation created")
	return conv, nil
}

func (r *RepositoryImpl) GetConversation(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "GetConversation", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("conversation.id", conversationID.String()),
	))
	defer span.End()

	conv := &types.Conversation{ID: conversationID}
	var detailsJSON []byte
	err := r.pgpool.QueryRow(ctx, `
        SELECT map_details, created_at
        FROM conversations
        WHERE id = $1
    `, conversationID).Scan(&detailsJSON, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Conversation not found")
		return nil, types.ErrConversationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query conversation")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &conv.MapDetails); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to unmarshal map details: %w", err)
		}
	}

	messages, err := r.conversationMessages(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load messages")
		return nil, err
	}
	conv.Messages = messages

	span.SetAttributes(attribute.Int("messages.count", len(messages)))
	span.SetStatus(codes.Ok, "Conversation loaded")
	return conv, nil
}

func (r *RepositoryImpl) conversationMessages(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	rows, err := r.pgpool.Query(ctx, `
        SELECT id, from_bot, type, content, COALESCE(client_id, ''), created_at
        FROM conversation_messages
        WHERE conversation_id = $1
        ORDER BY seq ASC
    `, conversationID)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []types.Message{}
	for rows.Next() {
		var m types.Message
		var content []byte
		if err := rows.Scan(&m.ID, &m.FromBot, &m.Type, &content, &m.ClientID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := m.DecodeContent(content); err != nil {
			return nil, fmt.Errorf("failed to decode message content: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading messages: %w", err)
	}
	return messages, nil
}

// AppendMessage stores one message at the end of the conversation's log.
// The INSERT is guarded by an EXISTS check so appends to unknown
// conversations surface as ErrConversationNotFound instead of an FK error.
func (r *RepositoryImpl) AppendMessage(ctx context.Context, conversationID uuid.UUID, message types.Message) (*types.Message, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "AppendMessage", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "conversation_messages"),
		attribute.String("conversation.id", conversationID.String()),
		attribute.String("message.type", string(message.Type)),
		attribute.Bool("message.fromBot", message.FromBot),
	))
	defer span.End()

	if message.Type == "" {
		message.Type = types.MessageTypeText
	}
	content, err := message.EncodeContent()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode message content: %w", err)
	}

	var clientID any
	if message.ClientID != "" {
		clientID = message.ClientID
	}

	err = r.pgpool.QueryRow(ctx, `
        INSERT INTO conversation_messages (conversation_id, from_bot, type, content, client_id)
        SELECT $1, $2, $3, $4, $5
        WHERE EXISTS (SELECT 1 FROM conversations WHERE id = $1)
        RETURNING id, created_at
    `, conversationID, message.FromBot, message.Type, content, clientID).
		Scan(&message.ID, &message.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Conversation not found")
		return nil, types.ErrConversationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert message")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	span.SetStatus(codes.Ok, "Message appended")
	return &message, nil
}

// UpdateMapDetails replaces the conversation's map state wholesale.
func (r *RepositoryImpl) UpdateMapDetails(ctx context.Context, conversationID uuid.UUID, details types.MapDetails) error {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "UpdateMapDetails", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "conversations"),
		attribute.String("conversation.id", conversationID.String()),
		attribute.Int("places.count", len(details.Places)),
	))
	defer span.End()

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal map details: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, `
        UPDATE conversations
        SET map_details = $2
        WHERE id = $1
    `, conversationID, detailsJSON)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update map details")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return fmt.Errorf("failed to update map details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Conversation not found")
		return types.ErrConversationNotFound
	}

	span.SetStatus(codes.Ok, "Map details updated")
	return nil
}
