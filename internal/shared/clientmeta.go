package shared

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientMeta carries request metadata recorded on audit entries.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Actor identifies the authenticated user performing a request. Token
// verification happens upstream; by the time requests reach this service the
// actor id travels in the X-Actor-Id header.
type Actor struct {
	ID string
}

type contextKey string

const (
	clientMetaKey contextKey = "client_meta"
	actorKey      contextKey = "actor"
)

const actorHeader = "X-Actor-Id"

// ClientMetaMiddleware extracts the caller's IP address and user agent.
func ClientMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := ClientMeta{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClientMeta(r.Context(), meta)))
	})
}

// ActorMiddleware resolves the acting user from the request headers.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := Actor{ID: strings.TrimSpace(r.Header.Get(actorHeader))}
		if actor.ID == "" {
			actor.ID = "anonymous"
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// ContextWithClientMeta stores client metadata in the context.
func ContextWithClientMeta(ctx context.Context, meta ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey, meta)
}

// ClientMetaFromContext retrieves client metadata, zero value when absent.
func ClientMetaFromContext(ctx context.Context) ClientMeta {
	meta, _ := ctx.Value(clientMetaKey).(ClientMeta)
	return meta
}

// ContextWithActor stores the acting user in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the acting user, "anonymous" when absent.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.ID == "" {
		return Actor{ID: "anonymous"}
	}
	return actor
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
