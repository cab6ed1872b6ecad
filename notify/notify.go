// Package notify provides unified notification types and helpers for
// server-to-client communication about round, phraseset, and wallet
// events.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Notification codes. Keep stable once a client ships against them.
const (
	CodeSystem             = 0 // System messages / fallback toast
	CodeToast              = 1 // Simple toast notifications
	CodePhrasesetFinalized = 2 // A phraseset you contributed to finalized
	CodeWallet             = 4 // Wallet/currency updates (refund, prize, bonus)
	CodeRoundExpiring      = 7 // Your active round is about to expire
	CodeAnnouncement       = 8 // Maintenance/server announcements
)

// EventPayload is the unified event schema for all delivery channels —
// the engine events a client cares about, kept MECE by purpose.
type EventPayload struct {
	EventID   string `json:"event_id"`
	CreatedAt int64  `json:"created_at"`

	Source    string `json:"source,omitempty"` // round_expiry, phraseset_finalize, announcement, or a wallet transaction kind (refund, daily_bonus)
	ReasonKey string `json:"reason_key,omitempty"`

	Wallet    *WalletDelta    `json:"wallet,omitempty"`
	Phraseset *PhrasesetEvent `json:"phraseset,omitempty"`
}

// WalletDelta is a discrete balance change rather than an absolute
// total, so a client processing events out of order never clobbers a
// later balance with an earlier snapshot.
type WalletDelta struct {
	Amount  int64  `json:"amount"`
	Kind    string `json:"kind"`
	Balance int64  `json:"balance_after,omitempty"`
}

// PhrasesetEvent carries a finalized phraseset's own-role payout.
type PhrasesetEvent struct {
	PhrasesetID string `json:"phraseset_id"`
	Role        string `json:"role"`
	Payout      int64  `json:"payout"`
}

func NewEventPayload(source string) *EventPayload {
	return &EventPayload{
		EventID:   generateID(),
		CreatedAt: time.Now().UnixMilli(),
		Source:    source,
	}
}

func generateID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func send(ctx context.Context, nk runtime.NakamaModule, userID, subject string, payload *EventPayload, code int, persistent bool) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	var content map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &content); err != nil {
		return fmt.Errorf("notify: unmarshal event: %w", err)
	}
	return nk.NotificationSend(ctx, userID, subject, content, code, "", persistent)
}

// SendWalletDelta notifies a player of a refund, prize payout, or daily
// bonus hitting their balance.
func SendWalletDelta(ctx context.Context, nk runtime.NakamaModule, userID, kind string, amount, balanceAfter int64) error {
	payload := NewEventPayload(kind)
	payload.Wallet = &WalletDelta{Amount: amount, Kind: kind, Balance: balanceAfter}
	return send(ctx, nk, userID, "Balance updated", payload, CodeWallet, false)
}

// SendPhrasesetFinalized notifies a contributor their phraseset
// finalized and what their role earned.
func SendPhrasesetFinalized(ctx context.Context, nk runtime.NakamaModule, userID, phrasesetID, role string, payout int64) error {
	payload := NewEventPayload("phraseset_finalize")
	payload.Phraseset = &PhrasesetEvent{PhrasesetID: phrasesetID, Role: role, Payout: payout}
	return send(ctx, nk, userID, "Your phraseset finalized", payload, CodePhrasesetFinalized, true)
}

// SendRoundExpiring warns a player their active round is about to
// time out.
func SendRoundExpiring(ctx context.Context, nk runtime.NakamaModule, userID string) error {
	payload := NewEventPayload("round_expiry")
	return send(ctx, nk, userID, "Your round is about to expire", payload, CodeRoundExpiring, false)
}

// SendAnnouncement sends a persistent server announcement.
func SendAnnouncement(ctx context.Context, nk runtime.NakamaModule, userID, title, body string) error {
	payload := NewEventPayload("announcement")
	payload.ReasonKey = body
	return send(ctx, nk, userID, title, payload, CodeAnnouncement, true)
}
