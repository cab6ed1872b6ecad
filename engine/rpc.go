package engine

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	phraseerrors "phrasepool.dev/errors"
)

// FeedbackRecorder is the relational collaborator behind
// SubmitPromptFeedback — storage/prompts.go's Postgres-backed
// implementation.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, playerID string, promptID, roundID uuid.UUID, feedbackType string) error
}

// Engine groups the services each RPC handler needs. Its methods are
// registered against initializer.RegisterRpc as method values, the same
// way items/player_rpc.go's free functions are registered directly —
// binding state through a receiver instead of package-level globals.
type Engine struct {
	Rounds   *RoundCoordinator
	Votes    *VoteService
	Activity *ActivityService
	Player   *PlayerService
	Queue    *QueueService
	Feedback FeedbackRecorder
}

func getUserID(ctx context.Context, logger runtime.Logger) (string, error) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok {
		logger.Error("no user id found in context")
		return "", phraseerrors.ErrNoUserIDFound
	}
	return userID, nil
}

func marshalResponse(logger runtime.Logger, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("marshal response: %v", err)
		return "", phraseerrors.ErrMarshal
	}
	return string(b), nil
}

func roundResponse(round *Round) map[string]interface{} {
	if round == nil {
		return nil
	}
	resp := map[string]interface{}{
		"round_id":   round.ID.String(),
		"tag":        round.Tag,
		"status":     round.Status,
		"expires_at": round.ExpiresAt,
		"cost":       round.Cost,
	}
	if round.PromptText != "" {
		resp["prompt_text"] = round.PromptText
	}
	if round.OriginalPhrase != "" {
		resp["original_phrase"] = round.OriginalPhrase
	}
	return resp
}

// RpcStartPromptRound registers as "start_prompt_round".
func (e *Engine) RpcStartPromptRound(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	round, err := e.Rounds.StartPromptRound(ctx, userID)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, roundResponse(round))
}

type submitPromptPhraseRequest struct {
	RoundID string `json:"round_id"`
	Phrase  string `json:"phrase"`
}

// RpcSubmitPromptPhrase registers as "submit_prompt_phrase".
func (e *Engine) RpcSubmitPromptPhrase(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req submitPromptPhraseRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	roundID, err := uuid.Parse(req.RoundID)
	if err != nil {
		return "", phraseerrors.ErrInvalidPhrase
	}
	normalized, err := e.Rounds.SubmitPromptPhrase(ctx, userID, roundID, req.Phrase)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{
		"success":          true,
		"phrase_normalized": normalized,
	})
}

// RpcStartCopyRound registers as "start_copy_round".
func (e *Engine) RpcStartCopyRound(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	round, promptRound, discountActive, err := e.Rounds.StartCopyRound(ctx, userID)
	if err != nil {
		return "", err
	}
	resp := roundResponse(round)
	resp["discount_active"] = discountActive
	if promptRound != nil {
		resp["prompt_text"] = promptRound.PromptText
		resp["prompt_round_id"] = promptRound.ID.String()
	}
	return marshalResponse(logger, resp)
}

type submitCopyPhraseRequest struct {
	RoundID      string `json:"round_id"`
	Phrase       string `json:"phrase"`
	AIAssistUsed bool   `json:"ai_assist_used"`
}

// RpcSubmitCopyPhrase registers as "submit_copy_phrase".
func (e *Engine) RpcSubmitCopyPhrase(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req submitCopyPhraseRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	roundID, err := uuid.Parse(req.RoundID)
	if err != nil {
		return "", phraseerrors.ErrInvalidPhrase
	}
	normalized, err := e.Rounds.SubmitCopyPhrase(ctx, userID, roundID, req.Phrase, req.AIAssistUsed)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{
		"success":          true,
		"phrase_normalized": normalized,
	})
}

// RpcStartVoteRound registers as "start_vote_round".
func (e *Engine) RpcStartVoteRound(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	round, ps, phrases, err := e.Votes.StartVote(ctx, userID)
	if err != nil {
		return "", err
	}
	resp := roundResponse(round)
	resp["prompt_text"] = ps.PromptText
	resp["phraseset_id"] = ps.ID.String()
	resp["phrases"] = phrases
	return marshalResponse(logger, resp)
}

type submitVoteRequest struct {
	RoundID     string `json:"round_id"`
	VotedPhrase string `json:"voted_phrase"`
}

// RpcSubmitVote registers as "submit_vote".
func (e *Engine) RpcSubmitVote(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req submitVoteRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	roundID, err := uuid.Parse(req.RoundID)
	if err != nil {
		return "", phraseerrors.ErrInvalidChoice
	}
	correct, payout, originalPhrase, yourChoice, err := e.Votes.SubmitVote(ctx, userID, roundID, req.VotedPhrase)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{
		"correct":         correct,
		"payout":          payout,
		"original_phrase": originalPhrase,
		"your_choice":     yourChoice,
	})
}

// RpcGetRoundAvailability registers as "get_round_availability".
func (e *Engine) RpcGetRoundAvailability(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	promptsWaiting, err := e.Queue.PromptsWaiting(ctx)
	if err != nil {
		return "", err
	}
	phrasesetsWaiting, err := e.Queue.PhrasesetsWaiting(ctx)
	if err != nil {
		return "", err
	}
	cost, discount, err := e.Queue.CopyCost(ctx)
	if err != nil {
		return "", err
	}
	availability, err := e.Rounds.GetAvailability(ctx, userID)
	if err != nil {
		return "", err
	}
	resp := map[string]interface{}{
		"prompts_waiting":      promptsWaiting,
		"phrasesets_waiting":   phrasesetsWaiting,
		"copy_cost":            cost,
		"copy_discount_active": discount,
		"can_prompt":           availability.CanPrompt,
		"can_copy":             availability.CanCopy,
		"can_vote":             availability.CanVote,
	}
	if availability.CurrentRoundID != nil {
		resp["current_round_id"] = availability.CurrentRoundID.String()
	}
	return marshalResponse(logger, resp)
}

type phrasesetIDRequest struct {
	PhrasesetID string `json:"phraseset_id"`
}

// RpcGetPhrasesetResults registers as "get_phraseset_results". Read-only —
// claiming the prize is a separate call (spec.md §4.8).
func (e *Engine) RpcGetPhrasesetResults(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req phrasesetIDRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	phrasesetID, err := uuid.Parse(req.PhrasesetID)
	if err != nil {
		return "", phraseerrors.ErrRoundNotFound
	}
	view, err := e.Activity.Detail(ctx, userID, phrasesetID)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, view)
}

// RpcClaimPhrasesetPrize registers as "claim_phraseset_prize".
func (e *Engine) RpcClaimPhrasesetPrize(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req phrasesetIDRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	phrasesetID, err := uuid.Parse(req.PhrasesetID)
	if err != nil {
		return "", phraseerrors.ErrRoundNotFound
	}
	amount, alreadyClaimed, err := e.Activity.ClaimPhrasesetPrize(ctx, userID, phrasesetID)
	if err != nil {
		return "", err
	}
	status, err := e.Player.Status(ctx, userID)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{
		"success":         true,
		"amount":          amount,
		"already_claimed": alreadyClaimed,
		"new_balance":     status.Balance,
	})
}

// RpcGetCurrentRound registers as "get_current_round".
func (e *Engine) RpcGetCurrentRound(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	round, err := e.Rounds.GetCurrentRound(ctx, userID)
	if err != nil {
		return "", err
	}
	status, err := e.Player.Status(ctx, userID)
	if err != nil {
		return "", err
	}
	resp := map[string]interface{}{"status": status}
	if round != nil {
		resp["round"] = roundResponse(round)
	}
	return marshalResponse(logger, resp)
}

// RpcClaimDailyBonus registers as "claim_daily_bonus".
func (e *Engine) RpcClaimDailyBonus(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	amount, newBalance, err := e.Player.ClaimDailyBonus(ctx, userID)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{
		"amount":      amount,
		"new_balance": newBalance,
	})
}

type phrasesetListRequest struct {
	Role   string       `json:"role"`
	Bucket StatusBucket `json:"bucket"`
}

// RpcGetPhrasesetList registers as "get_phraseset_list" (supplements the
// distilled RPC set with the player phraseset list read shape spec.md
// §4.8 describes but doesn't itself name as an RPC).
func (e *Engine) RpcGetPhrasesetList(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req phrasesetListRequest
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", phraseerrors.ErrUnmarshal
		}
	}
	list, err := e.Activity.PlayerPhrasesetList(ctx, userID, req.Role, req.Bucket)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{"phrasesets": list})
}

// RpcGetUnclaimedPhrasesets registers as "get_unclaimed_phrasesets".
func (e *Engine) RpcGetUnclaimedPhrasesets(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	list, err := e.Activity.Unclaimed(ctx, userID)
	if err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{"phrasesets": list})
}

type submitPromptFeedbackRequest struct {
	PromptID     string `json:"prompt_id"`
	RoundID      string `json:"round_id"`
	FeedbackType string `json:"feedback_type"` // "like" or "dislike"
}

// RpcSubmitPromptFeedback registers as "submit_prompt_feedback" — a
// non-monetary RPC supplementing the distilled set (spec.md's
// expansion, grounded on
// original_source/backend/routers/prompt_feedback.py). Touches no
// balance and no round state.
func (e *Engine) RpcSubmitPromptFeedback(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := getUserID(ctx, logger)
	if err != nil {
		return "", err
	}
	var req submitPromptFeedbackRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", phraseerrors.ErrUnmarshal
	}
	if req.FeedbackType != "like" && req.FeedbackType != "dislike" {
		return "", phraseerrors.ErrInvalidPhrase
	}
	promptID, err := uuid.Parse(req.PromptID)
	if err != nil {
		return "", phraseerrors.ErrInvalidPhrase
	}
	roundID, err := uuid.Parse(req.RoundID)
	if err != nil {
		return "", phraseerrors.ErrInvalidPhrase
	}
	if err := e.Feedback.RecordFeedback(ctx, userID, promptID, roundID, req.FeedbackType); err != nil {
		return "", err
	}
	return marshalResponse(logger, map[string]interface{}{"success": true})
}
