package llm

import (
	"context"
	"fmt"
	"time"
)

// Conversation maintains message history across turns so a caller can
// send corrective follow-ups ("your previous output was invalid, fix
// it") without rebuilding context. The beat planner leans on this for
// its repair retries.
//
// client: The LLM client
// systemPrompt: System prompt for the conversation context
// messages: History of messages in the conversation
// maxHistory: Maximum number of messages to keep in history
type Conversation struct {
	client       *Client
	systemPrompt string
	messages     []Message
	maxHistory   int
	createdAt    time.Time
	updatedAt    time.Time
}

// NewConversation creates a new conversation with the given client and
// system prompt. maxHistory <= 0 selects the default of 100 messages.
func NewConversation(client *Client, systemPrompt string, maxHistory int) *Conversation {
	if maxHistory <= 0 {
		maxHistory = 100
	}

	return &Conversation{
		client:       client,
		systemPrompt: systemPrompt,
		messages:     make([]Message, 0),
		maxHistory:   maxHistory,
		createdAt:    time.Now(),
		updatedAt:    time.Now(),
	}
}

// SendMessage sends a message in the conversation and gets a response.
func (c *Conversation) SendMessage(ctx context.Context, content string) (string, error) {
	return c.SendMessageWithOptions(ctx, content, nil)
}

// SendMessageWithOptions sends a message with additional options.
// The user message and the assistant's reply are both appended to the
// history.
func (c *Conversation) SendMessageWithOptions(ctx context.Context, content string, opts *ChatCompletionOptions) (string, error) {
	userMessage := Message{
		Role:    "user",
		Content: content,
	}

	c.addMessage(userMessage)

	messages := c.prepareMessages()

	completionOpts := NewChatCompletionOptions()
	if opts != nil {
		completionOpts = opts
	}

	response, err := c.client.ChatCompletion(ctx, messages, completionOpts)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	assistantContent := response.Choices[0].Message.Content

	c.addMessage(Message{
		Role:    "assistant",
		Content: assistantContent,
	})

	c.updatedAt = time.Now()

	return assistantContent, nil
}

// ClearHistory clears the conversation history
// Keeps the system prompt but removes all messages
func (c *Conversation) ClearHistory() {
	c.messages = make([]Message, 0)
	c.updatedAt = time.Now()
}

// GetHistory returns a copy of the conversation history
func (c *Conversation) GetHistory() []Message {
	history := make([]Message, len(c.messages))
	copy(history, c.messages)
	return history
}

// GetMessageCount returns the number of messages in the conversation
func (c *Conversation) GetMessageCount() int {
	return len(c.messages)
}

// IsEmpty returns true if the conversation has no messages
func (c *Conversation) IsEmpty() bool {
	return len(c.messages) == 0
}

// addMessage adds a message to the history, maintaining max history limit
func (c *Conversation) addMessage(msg Message) {
	c.messages = append(c.messages, msg)

	if len(c.messages) > c.maxHistory {
		// Keep the most recent messages
		excess := len(c.messages) - c.maxHistory
		c.messages = c.messages[excess:]
	}
}

// prepareMessages prepares messages for the API, including system prompt
func (c *Conversation) prepareMessages() []Message {
	messages := make([]Message, 0)

	if c.systemPrompt != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: c.systemPrompt,
		})
	}

	messages = append(messages, c.messages...)

	return messages
}
