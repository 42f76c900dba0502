// Package domain defines the persistence models for conversations, messages,
// case documents, and feedback. These types are mapped with GORM and form the
// core data layer of the legal assistant backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles accepted by the messages table. The "error" role records a
// turn whose generation failed; such rows keep the transcript honest without
// pretending the assistant answered.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Conversation represents a thread of messages owned by exactly one user and
// attached to exactly one case. Conversations are created lazily on the first
// message of a case when the client does not supply an id.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owner; immutable after creation.
//   - CaseID: identifier of the legal case this thread belongs to.
//   - Title: human-readable title derived from the opening user message.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_conversations"`
	CaseID    string         `json:"case_id"    gorm:"type:varchar(64);not null;index:idx_case_conversations"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New conversation'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation. Rows are
// immutable after insert; the asynchronous citation-verification note is
// appended as a new system-role row, never an update of an existing one.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - Role: one of system/user/assistant/error (enforced by DB constraint).
//   - Content: full text content of the message.
//   - Model: identifier of the model that produced an assistant message.
//   - Metadata: free-form map recording which document-context ids and which
//     preloaded-snippet type were active when the message was sent.
//   - Score: optional feedback score in [-1, 1] (assistant messages only).
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('system','user','assistant','error')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	Model          *string        `json:"model,omitempty" gorm:"type:varchar(64)"`
	Metadata       map[string]any `json:"metadata,omitempty" gorm:"serializer:json"`
	Score          *float64       `json:"score,omitempty"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent thread. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Document is the read model for an uploaded case document after the
// extraction pipeline has run. Only the extracted text is consumed here; the
// original blob lives in external storage and is out of scope.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - CaseID: identifier of the case the document belongs to (indexed).
//   - Filename: original upload name, shown in context section headers.
//   - ContentType: MIME type recorded at upload time.
//   - ExtractedText: plain text produced by the extraction pipeline.
type Document struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	CaseID        string         `json:"case_id"        gorm:"type:varchar(64);not null;index:idx_case_documents"`
	Filename      string         `json:"filename"       gorm:"type:varchar(255);not null"`
	ContentType   string         `json:"content_type"   gorm:"type:varchar(128)"`
	ExtractedText string         `json:"extracted_text" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Feedback represents a user-provided rating on a specific assistant message.
// A user can only leave one feedback entry per message (enforced by unique index).
type Feedback struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string         `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_user"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_feedback_message_user"`
	Value     int            `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Message is the rated assistant message. Feedback is cascade-deleted
	// if the underlying message is removed.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
