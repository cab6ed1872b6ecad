package engine

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
)

// LogWithUser injects the caller's user id into every structured field map
// before delegating to logger. Kept as a single copy — the teacher has this
// duplicated verbatim across items/logging.go and items/utils.go.
func LogWithUser(ctx context.Context, logger runtime.Logger, level, message string, fields map[string]interface{}) {
	if userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string); ok {
		if fields == nil {
			fields = make(map[string]interface{})
		}
		fields["user"] = userID
	}

	if len(fields) > 0 {
		switch level {
		case "debug":
			logger.WithFields(fields).Debug(message)
		case "warn":
			logger.WithFields(fields).Warn(message)
		case "error":
			logger.WithFields(fields).Error(message)
		default:
			logger.WithFields(fields).Info(message)
		}
		return
	}

	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}
}

func LogError(ctx context.Context, logger runtime.Logger, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithUser(ctx, logger, "error", message, fields)
}

func LogInfo(ctx context.Context, logger runtime.Logger, message string, fields map[string]interface{}) {
	LogWithUser(ctx, logger, "info", message, fields)
}

func LogWarn(ctx context.Context, logger runtime.Logger, message string, fields map[string]interface{}) {
	LogWithUser(ctx, logger, "warn", message, fields)
}

func LogSuccess(ctx context.Context, logger runtime.Logger, operation string) {
	LogWithUser(ctx, logger, "info", operation+" completed", nil)
}
