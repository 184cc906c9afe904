package httpx

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyRequestTags
)

const RequestIDHeader = "X-Request-Id"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestTags is filled by inner handlers (auth) and read by the access log.
type requestTags struct {
	businessID string
}

func withRequestTags(ctx context.Context, tags *requestTags) context.Context {
	return context.WithValue(ctx, ctxKeyRequestTags, tags)
}

// TagBusiness records the tenant on the request so the access log can report it.
func TagBusiness(ctx context.Context, businessID string) {
	if tags, ok := ctx.Value(ctxKeyRequestTags).(*requestTags); ok {
		tags.businessID = businessID
	}
}
