package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taiyari/internal/entities"
	"taiyari/internal/interfaces"
	"taiyari/internal/logging"
	"taiyari/internal/metrics"
)

// Sentinel errors surfaced by the chat path.
var (
	ErrEmptyHistory = errors.New("conversation history is empty")
)

const transcriptWriteTimeout = 5 * time.Second

type ChatOptions struct {
	HistoryLimit      int
	GenerationTimeout time.Duration
}

// ChatService answers a tenant's end users. It holds no per-request state
// and is safe for concurrent use.
type ChatService struct {
	tenants     interfaces.TenantStore
	transcripts interfaces.TranscriptStore
	generator   interfaces.Generator
	prompts     *PromptBuilder
	opts        ChatOptions
	log         zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewChatService(
	tenants interfaces.TenantStore,
	transcripts interfaces.TranscriptStore,
	generator interfaces.Generator,
	prompts *PromptBuilder,
	opts ChatOptions,
	log zerolog.Logger,
	m *metrics.Metrics,
) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &ChatService{
		tenants:     tenants,
		transcripts: transcripts,
		generator:   generator,
		prompts:     prompts,
		opts:        opts,
		log:         logging.Component(log, "chat"),
		metrics:     m,
		now:         time.Now,
	}
}

// Handle answers the latest user message of history for tenantID.
//
// Generation failures never reach the caller: they produce the localized
// fallback reply with Fallback set. The transcript is written only when a
// conversation id is given, and a failed write is logged and dropped.
func (s *ChatService) Handle(ctx context.Context, tenantID string, history []entities.Message, conversationID string) (*entities.ChatReply, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, entities.ErrTenantNotFound) {
			s.metrics.RecordChat(metrics.OutcomeNotFound)
		}
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	query := entities.LastUserMessage(history)
	retrieval := Retrieve(query, &tenant.Knowledge)
	language := s.prompts.Language(tenant.Persona.Language)
	instruction := s.prompts.Build(tenant.Persona.Name, language, retrieval)

	reply := &entities.ChatReply{TenantID: tenantID, RAGUsed: retrieval.HasContext()}

	text, err := s.generate(ctx, instruction, WindowHistory(history, s.opts.HistoryLimit))
	if err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("generation failed, sending fallback reply")
		s.metrics.RecordChat(metrics.OutcomeFallback)
		reply.Message = s.prompts.Fallback(language)
		reply.Fallback = true
		return reply, nil
	}

	reply.Message = text
	s.metrics.RecordChat(metrics.OutcomeOK)
	if reply.RAGUsed {
		s.metrics.GroundedRepliesTotal.Inc()
	}

	if conversationID != "" {
		s.saveTranscript(ctx, tenantID, conversationID, history, text)
	}
	return reply, nil
}

func (s *ChatService) generate(ctx context.Context, instruction string, history []entities.Message) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("no generator configured: %w", entities.ErrGenerationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(ctx, instruction, history)
	s.metrics.RecordGeneration(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", entities.ErrGenerationFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", entities.ErrGenerationFailed)
	}
	return text, nil
}

func (s *ChatService) saveTranscript(ctx context.Context, tenantID, conversationID string, history []entities.Message, reply string) {
	messages := make([]entities.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, entities.Message{Role: entities.RoleAssistant, Content: reply})

	// the reply is already computed, so a caller hanging up must not drop the write
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptWriteTimeout)
	defer cancel()

	err := s.transcripts.Save(ctx, entities.Transcript{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Messages:       messages,
		Timestamp:      s.now().UTC(),
	})
	if err != nil {
		s.metrics.TranscriptFailures.Inc()
		s.log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("conversation_id", conversationID).
			Msg("transcript not saved")
	}
}

// WindowHistory keeps the last limit messages and drops leading assistant
// turns so the window opens with a user message.
func WindowHistory(history []entities.Message, limit int) []entities.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	for len(history) > 1 && history[0].Role != entities.RoleUser {
		history = history[1:]
	}
	return history
}
