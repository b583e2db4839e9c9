package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies the API call a unit of work came from.
type TraceData struct {
	TraceID   string
	RequestID string
	TenantID  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// Fields returns the non-empty trace and request ids as logger key/value
// pairs. The tenant is left to callers, which usually log it explicitly.
func (td *TraceData) Fields() []interface{} {
	if td == nil {
		return nil
	}
	var kv []interface{}
	if td.TraceID != "" {
		kv = append(kv, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		kv = append(kv, "http_request_id", td.RequestID)
	}
	return kv
}
