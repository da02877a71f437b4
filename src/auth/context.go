package auth

import "context"

type contextKey string

const (
	OperatorKey  contextKey = "operator"
	RequestIDKey contextKey = "request_id"
)

// Operator is the dashboard user authenticated by the access password.
type Operator struct {
	Name      string
	RemoteIP  string
	RequestID string
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, OperatorKey, op)
}

func GetOperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(OperatorKey).(*Operator)
	return op, ok
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext returns the request id, empty outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
