package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NetPo4ki/go-flowscope/scope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestObserverLevels(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")
	s := scope.New(context.Background(), scope.FailFast, scope.WithObserver(New(l)), scope.WithName("worker"))
	s.Go(func(context.Context) error { return boom })
	require.ErrorIs(t, s.Wait(), boom)

	var errorsLogged int
	for _, rec := range buf.records(t) {
		if rec["msg"] == "job finished" && rec["level"] == "ERROR" {
			errorsLogged++
			job := rec["job"].(map[string]any)
			assert.Equal(t, "worker", job["name"])
		}
	}
	assert.Equal(t, 2, errorsLogged, "the failing child and its scope")
}

func TestHandlerAddsJobLabel(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	l := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")
	var label string
	_, err := scope.RunBlocking(context.Background(), func(ctx context.Context) (struct{}, error) {
		label = scope.Label(ctx)
		l.InfoContext(ctx, "inside")
		return struct{}{}, nil
	})
	require.NoError(t, err)
	l.Info("outside")

	recs := buf.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, label, recs[0][JobKey])
	assert.True(t, strings.HasPrefix(label, "main#"))
	assert.Equal(t, "test", recs[0]["component"])
	assert.NotContains(t, recs[1], JobKey)
}
