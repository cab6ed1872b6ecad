package main

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/engine"
)

// afterAuthenticateDevice seeds a new account's starting balance the first
// time it authenticates. out.Created distinguishes a brand-new account
// from a returning one; Onboard itself credits the balance unconditionally,
// so this guard is what actually prevents re-seeding it on every login.
func afterAuthenticateDevice(player *engine.PlayerService) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, *api.Session, *api.AuthenticateDeviceRequest) error {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error {
		if !out.Created {
			return nil
		}
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if err := player.Onboard(ctx, userID); err != nil {
			logger.Error("onboard %s: %v", userID, err)
			return err
		}
		return nil
	}
}

func afterAuthenticateGameCenter(player *engine.PlayerService) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, *api.Session, *api.AuthenticateGameCenterRequest) error {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateGameCenterRequest) error {
		if !out.Created {
			return nil
		}
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if err := player.Onboard(ctx, userID); err != nil {
			logger.Error("onboard %s: %v", userID, err)
			return err
		}
		return nil
	}
}
