package testutil

import (
	"context"

	"github.com/flexprice/planshift/internal/types"
)

const (
	DefaultUserID    = "user_test"
	DefaultUserEmail = "test@example.com"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetUserID(ctx, DefaultUserID)
	ctx = types.SetUserEmail(ctx, DefaultUserEmail)
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	return ctx
}
