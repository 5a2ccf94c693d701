package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"taiyari/internal/entities"
)

type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string
	Model     string
	MaxTokens int
}

// NewArkChatModel builds an eino chat model on Volcengine Ark.
func NewArkChatModel(ctx context.Context, c ArkConfig) (model.BaseChatModel, error) {
	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: maxTokens,
	}
	return ark.NewChatModel(ctx, cfg)
}

// EinoGenerator adapts any eino chat model to the Generator port.
type EinoGenerator struct {
	chatModel model.BaseChatModel
}

func NewEinoGenerator(chatModel model.BaseChatModel) *EinoGenerator {
	return &EinoGenerator{chatModel: chatModel}
}

func (g *EinoGenerator) Generate(ctx context.Context, instruction string, history []entities.Message) (string, error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(instruction))
	for _, msg := range history {
		switch msg.Role {
		case entities.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case entities.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}

	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat model: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("chat model returned no text")
	}
	return strings.TrimSpace(resp.Content), nil
}
