package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/session"
)

type contextKey string

const (
	sessionContextKey   contextKey = "session"
	requestIDContextKey contextKey = "request_id"
)

// getSessionFromContext retrieves the session context from the request context.
// The session is stored as a value so the request lifecycle stays separate from the session lifecycle.
func getSessionFromContext(ctx context.Context) (*session.Context, error) {
	sessionCtx, ok := ctx.Value(sessionContextKey).(*session.Context)
	if !ok || sessionCtx == nil {
		return nil, fmt.Errorf("session context not found in request context")
	}
	return sessionCtx, nil
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// createSessionInjectionMiddleware creates middleware that looks up or creates
// the caller's session and stores it in the request context
func createSessionInjectionMiddleware(sessionMgr *session.Manager) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			sessionCtx := sessionMgr.GetOrCreateSession(sessionID(req))
			sessionCtx.UpdateLastAccessed()

			ctx = context.WithValue(ctx, sessionContextKey, sessionCtx)
			return next(ctx, method, req)
		}
	}
}

// createLoggingMiddleware creates middleware that logs all MCP method calls
// under a fresh request id
func createLoggingMiddleware(logger *zap.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			requestID := uuid.NewString()
			ctx = context.WithValue(ctx, requestIDContextKey, requestID)

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("session", sessionID(req)),
				zap.String("method", method),
			}
			if params, ok := req.GetParams().(*mcp.CallToolParamsRaw); ok {
				fields = append(fields, zap.String("tool", params.Name))
			}
			logger.Debug("request", fields...)

			result, err := next(ctx, method, req)

			fields = append(fields, zap.Duration("duration", time.Since(start)))
			if err != nil {
				logger.Warn("request failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("response", fields...)
			}

			return result, err
		}
	}
}

// sessionIDHeader carries the session id of streamable HTTP requests
const sessionIDHeader = "Mcp-Session-Id"

// WithSessionCleanup drops a session's source maps once the client ends the
// session with a DELETE request. Sessions closed by idle timeout are left to
// Manager.PruneIdle.
func WithSessionCleanup(next http.Handler, sessionMgr *session.Manager, logger *zap.Logger) http.Handler {
	if sessionMgr == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		id := r.Header.Get(sessionIDHeader)
		if r.Method != http.MethodDelete || id == "" {
			return
		}
		sessionCtx := sessionMgr.GetSession(id)
		if sessionCtx == nil {
			return
		}
		names := sessionCtx.Names()
		if err := sessionMgr.DeleteSession(id); err != nil {
			logger.Debug("session already removed", zap.String("session", id), zap.Error(err))
			return
		}
		logger.Info("session closed", zap.String("session", id), zap.Strings("maps", names))
	})
}

func sessionID(req mcp.Request) string {
	if ss, ok := req.GetSession().(*mcp.ServerSession); ok && ss != nil {
		return ss.ID()
	}
	return ""
}
