package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yousuf/stackmap/internal/session"
)

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cs := connect(t, Deps{Logger: zap.New(core)})

	call(t, cs, "parse_stack", map[string]any{"stack": "Error"})

	var found bool
	for _, entry := range logs.FilterMessage("request").All() {
		fields := entry.ContextMap()
		if fields["tool"] == "parse_stack" {
			found = true
			assert.Equal(t, "tools/call", fields["method"])
			assert.Len(t, fields["request_id"], 36)
		}
	}
	assert.True(t, found, "tool call was logged")
	assert.NotZero(t, logs.FilterMessage("response").Len())
}

func TestSessionInjection(t *testing.T) {
	sessions := session.NewManager(nil)
	cs := connect(t, Deps{Sessions: sessions})

	call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})

	sessionCtx := sessions.GetSession("")
	require.NotNil(t, sessionCtx)
	assert.Equal(t, []string{"app"}, sessionCtx.Names())
}

func TestGetSessionFromContextMissing(t *testing.T) {
	_, err := getSessionFromContext(context.Background())
	assert.ErrorContains(t, err, "session context not found")
	assert.Equal(t, "", requestIDFromContext(context.Background()))
}

func TestWithSessionCleanup(t *testing.T) {
	sessions := session.NewManager(nil)
	sessions.GetOrCreateSession("abc")
	sessions.GetOrCreateSession("keep")

	served := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusNoContent)
	})
	core, logs := observer.New(zapcore.InfoLevel)
	handler := WithSessionCleanup(next, sessions, zap.New(core))

	send := func(method, id string) {
		req := httptest.NewRequest(method, "/", nil)
		if id != "" {
			req.Header.Set(sessionIDHeader, id)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	send(http.MethodPost, "abc")
	assert.NotNil(t, sessions.GetSession("abc"), "only DELETE ends a session")

	send(http.MethodDelete, "abc")
	assert.Nil(t, sessions.GetSession("abc"))
	assert.NotNil(t, sessions.GetSession("keep"))
	assert.Equal(t, 1, logs.FilterMessage("session closed").Len())

	send(http.MethodDelete, "unknown")
	send(http.MethodDelete, "")
	assert.Equal(t, 1, sessions.Len())
	assert.Equal(t, 4, served)
}
