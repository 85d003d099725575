package auth

import "context"

type contextKey struct{}

// AuthContext identifies the employee behind a request.
type AuthContext struct {
	EmployeeID int64
	Username   string
	IsAdmin    bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// EmployeeID returns the acting employee, or 0 when the request is
// unauthenticated.
func EmployeeID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.EmployeeID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsAdmin
}
