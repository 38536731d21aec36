package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation rappresenta una sessione di chat con un agente
type Conversation struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Title string    `json:"title"`

	// Suite e sezione che hanno generato la conversazione
	Source string `json:"source" gorm:"index"`

	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TableName specifica il nome della tabella
func (Conversation) TableName() string {
	return "conversations"
}

// Message rappresenta un singolo messaggio di una conversazione
type Message struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;not null;index"`

	// Posizione nella conversazione, parte da 0
	Position int `json:"position" gorm:"not null;index"`

	// Tipo del messaggio: human, ai, system, generic, tool, function
	Type    string `json:"type" gorm:"not null"`
	Role    string `json:"role,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate hook
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TableName specifica il nome della tabella
func (Message) TableName() string {
	return "conversation_messages"
}
