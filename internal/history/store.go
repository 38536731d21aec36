package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biodoia/goleapchain/pkg/database"
	"github.com/biodoia/goleapchain/pkg/models"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownType     = errors.New("unknown message type")
)

// Store persiste le conversazioni degli agenti su database
type Store struct {
	db *gorm.DB
}

// NewStore crea uno store sopra una connessione già migrata
func NewStore(db *database.DB) *Store {
	return &Store{db: db.DB}
}

// SessionSummary riassume una conversazione salvata
type SessionSummary struct {
	ID        uuid.UUID
	Title     string
	Source    string
	Messages  int64
	CreatedAt time.Time
}

// NewSession crea una nuova conversazione
func (s *Store) NewSession(ctx context.Context, source, title string) (*Session, error) {
	conv := &models.Conversation{Source: source, Title: title}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &Session{store: s, id: conv.ID}, nil
}

// Session apre una conversazione esistente
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	if _, err := s.conversation(ctx, id); err != nil {
		return nil, err
	}
	return &Session{store: s, id: id}, nil
}

// Sessions elenca le conversazioni dalla più recente
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("conversations.id, conversations.title, conversations.source, conversations.created_at, count(conversation_messages.id) as messages").
		Joins("left join conversation_messages on conversation_messages.conversation_id = conversations.id").
		Group("conversations.id").
		Order("conversations.created_at desc").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// Conversation restituisce una conversazione con i suoi messaggi ordinati
func (s *Store) Conversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("position asc").
		Find(&conv.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return conv, nil
}

// Clear elimina una conversazione e i suoi messaggi
func (s *Store) Clear(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}

// DeleteAll elimina tutte le conversazioni e restituisce quante erano
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Conversation{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return deleted, nil
}

func (s *Store) conversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Session è la storia di una conversazione, utilizzabile come memoria
// di un agente langchaingo
type Session struct {
	store *Store
	id    uuid.UUID
}

var _ schema.ChatMessageHistory = (*Session)(nil)

// ID restituisce l'identificativo della conversazione
func (s *Session) ID() uuid.UUID {
	return s.id
}

// AddMessage accoda un messaggio alla conversazione
func (s *Session) AddMessage(ctx context.Context, message llms.ChatMessage) error {
	return s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Message{}).Where("conversation_id = ?", s.id).Count(&count).Error; err != nil {
			return err
		}
		row := toRow(message)
		row.ConversationID = s.id
		row.Position = int(count)
		return tx.Create(&row).Error
	})
}

// AddUserMessage accoda un messaggio dell'utente
func (s *Session) AddUserMessage(ctx context.Context, message string) error {
	return s.AddMessage(ctx, llms.HumanChatMessage{Content: message})
}

// AddAIMessage accoda una risposta del modello
func (s *Session) AddAIMessage(ctx context.Context, message string) error {
	return s.AddMessage(ctx, llms.AIChatMessage{Content: message})
}

// Clear rimuove i messaggi mantenendo la conversazione
func (s *Session) Clear(ctx context.Context) error {
	return s.store.db.WithContext(ctx).
		Where("conversation_id = ?", s.id).
		Delete(&models.Message{}).Error
}

// Messages restituisce i messaggi in ordine
func (s *Session) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	var rows []models.Message
	if err := s.store.db.WithContext(ctx).
		Where("conversation_id = ?", s.id).
		Order("position asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	out := make([]llms.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// SetMessages sostituisce tutti i messaggi della conversazione
func (s *Session) SetMessages(ctx context.Context, messages []llms.ChatMessage) error {
	return s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", s.id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		for i, message := range messages {
			row := toRow(message)
			row.ConversationID = s.id
			row.Position = i
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func toRow(message llms.ChatMessage) models.Message {
	row := models.Message{
		Type:    string(message.GetType()),
		Content: message.GetContent(),
	}
	switch m := message.(type) {
	case llms.GenericChatMessage:
		row.Role = m.Role
		row.Name = m.Name
	case llms.FunctionChatMessage:
		row.Name = m.Name
	case llms.ToolChatMessage:
		row.Name = m.ID
	}
	return row
}

func fromRow(row models.Message) (llms.ChatMessage, error) {
	switch llms.ChatMessageType(row.Type) {
	case llms.ChatMessageTypeHuman:
		return llms.HumanChatMessage{Content: row.Content}, nil
	case llms.ChatMessageTypeAI:
		return llms.AIChatMessage{Content: row.Content}, nil
	case llms.ChatMessageTypeSystem:
		return llms.SystemChatMessage{Content: row.Content}, nil
	case llms.ChatMessageTypeGeneric:
		return llms.GenericChatMessage{Content: row.Content, Role: row.Role, Name: row.Name}, nil
	case llms.ChatMessageTypeFunction:
		return llms.FunctionChatMessage{Name: row.Name, Content: row.Content}, nil
	case llms.ChatMessageTypeTool:
		return llms.ToolChatMessage{ID: row.Name, Content: row.Content}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, row.Type)
	}
}
