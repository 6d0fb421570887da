package entity

import "context"

type contextKey string

const expectedUserCtxKey = contextKey("expected_user_id")

// ContextWithExpectedUser pins the user a remote metadata call is meant for.
func ContextWithExpectedUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, expectedUserCtxKey, userID)
}

func ExpectedUserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(expectedUserCtxKey).(string)
	return userID, ok && userID != ""
}
