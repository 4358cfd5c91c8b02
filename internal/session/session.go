package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
	RoleSystem    = openai.ChatMessageRoleSystem
)

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

// Params are the generation parameters sent with every turn
type Params struct {
	Model       string  `validate:"required"`
	Temperature float32 `validate:"gte=0,lte=2"`
	MaxTokens   int     `validate:"gt=0"`
}

// Validate checks the parameters against their constraints
func (p Params) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid generation parameters: %w", err)
	}
	return nil
}

// Turn is one user request plus its context. It is immutable once built.
type Turn struct {
	ID       string
	Messages []Message // prior context followed by the new user message
	Params   Params
	Stream   bool
}

// Content returns the new user content of the turn
func (t Turn) Content() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[len(t.Messages)-1].Content
}

// Conversation is the append-only history of one chat.
type Conversation struct {
	ID           string
	StartTime    time.Time
	SystemPrompt string
	Params       Params

	mu        sync.Mutex
	messages  []Message
	committed map[string]bool
}

// NewConversation creates an empty conversation
func NewConversation(params Params, systemPrompt string) *Conversation {
	return &Conversation{
		ID:           uuid.New().String(),
		StartTime:    time.Now(),
		SystemPrompt: systemPrompt,
		Params:       params,
		committed:    make(map[string]bool),
	}
}

// NewTurn appends the user message to history and returns a snapshot turn
// carrying the full context.
func (c *Conversation) NewTurn(content string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})

	msgs := make([]Message, 0, len(c.messages)+1)
	if c.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: c.SystemPrompt})
	}
	msgs = append(msgs, c.messages...)

	return Turn{
		ID:       uuid.New().String(),
		Messages: msgs,
		Params:   c.Params,
		Stream:   true,
	}
}

// Commit appends the finalized assistant reply for a turn. A turn can be
// committed only once.
func (c *Conversation) Commit(turnID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committed[turnID] {
		return fmt.Errorf("turn %s already committed", turnID)
	}
	c.committed[turnID] = true
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// Messages returns a copy of the history
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in history
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Clear drops all history
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
