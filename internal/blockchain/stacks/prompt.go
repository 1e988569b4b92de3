package stacks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"usdcx/bridge/internal/models"
)

// ErrPromptNotFound is returned when resolving a prompt that is not pending
var ErrPromptNotFound = errors.New("prompt not found")

// Prompt is a contract call waiting for the wallet
type Prompt struct {
	ID        string       `json:"id"`
	Call      ContractCall `json:"call"`
	CreatedAt time.Time    `json:"created_at"`
}

type pendingPrompt struct {
	prompt Prompt
	result chan models.Outcome
}

// PromptSigner parks contract calls until the UI reports what the wallet did with them.
// Request blocks until Finish, Cancel or Fail is called for the prompt, or ctx ends.
type PromptSigner struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
	logger  *zap.Logger
}

// NewPromptSigner creates an empty prompt broker
func NewPromptSigner(logger *zap.Logger) *PromptSigner {
	return &PromptSigner{
		pending: make(map[string]*pendingPrompt),
		logger:  logger.Named("prompts"),
	}
}

// Request implements Signer
func (s *PromptSigner) Request(ctx context.Context, call ContractCall) models.Outcome {
	p := &pendingPrompt{
		prompt: Prompt{
			ID:        uuid.New().String(),
			Call:      call,
			CreatedAt: time.Now().UTC(),
		},
		result: make(chan models.Outcome, 1),
	}

	s.mu.Lock()
	s.pending[p.prompt.ID] = p
	s.mu.Unlock()

	s.logger.Info("Prompt opened",
		zap.String("prompt_id", p.prompt.ID),
		zap.String("function", call.FunctionName))

	select {
	case outcome := <-p.result:
		return outcome
	case <-ctx.Done():
		s.remove(p.prompt.ID)
		s.logger.Warn("Prompt expired", zap.String("prompt_id", p.prompt.ID))
		return failedOutcome(call.FunctionName, ctx.Err())
	}
}

// Pending returns the open prompts, oldest first
func (s *PromptSigner) Pending() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Prompt, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.prompt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Finish resolves a prompt with the id of the broadcast transaction
func (s *PromptSigner) Finish(id, txID string) error {
	if txID == "" {
		return fmt.Errorf("tx id cannot be empty")
	}
	return s.resolve(id, models.Outcome{Result: models.OutcomeSuccess, TxID: txID})
}

// Cancel resolves a prompt the user dismissed
func (s *PromptSigner) Cancel(id string) error {
	return s.resolve(id, models.Outcome{Result: models.OutcomeCancelled})
}

// Fail resolves a prompt the wallet could not complete
func (s *PromptSigner) Fail(id, reason string) error {
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	if reason == "" {
		reason = "wallet error"
	}
	return s.resolve(id, failedOutcome(p.prompt.Call.FunctionName, errors.New(reason)))
}

func (s *PromptSigner) resolve(id string, outcome models.Outcome) error {
	p := s.remove(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	p.result <- outcome

	s.logger.Info("Prompt resolved",
		zap.String("prompt_id", id),
		zap.String("result", string(outcome.Result)))
	return nil
}

func (s *PromptSigner) remove(id string) *pendingPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return p
}
