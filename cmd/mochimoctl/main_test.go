package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
	"mochimo/internal/testutil"
	"mochimo/pkg/outbox"
)

func TestRootHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "outbox", "user", "healthcheck"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, nil))
	assert.Equal(t, "no events\n", buf.String())

	buf.Reset()
	projectID := int64(9)
	require.NoError(t, printEvents(&buf, []*outbox.Event{{
		ID:            4,
		AggregateType: "project",
		AggregateID:   &projectID,
		RoutingKey:    "project.status_changed",
		RetryCount:    5,
		LastError:     "connection refused",
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}))
	out := buf.String()
	assert.Contains(t, out, "ROUTING KEY")
	assert.Contains(t, out, "project/9")
	assert.Contains(t, out, "project.status_changed")
	assert.Contains(t, out, "connection refused")
}

type stubReplayer struct {
	ids    []int64
	failed int
	err    error
}

func (s *stubReplayer) ReplayEvent(_ context.Context, id int64) error {
	s.ids = append(s.ids, id)
	return s.err
}

func (s *stubReplayer) ReplayFailedEvents(context.Context, int) (int, error) {
	return s.failed, s.err
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	svc := &stubReplayer{failed: 3}
	require.NoError(t, replay(ctx, &buf, svc, nil))
	assert.Equal(t, "replayed 3 failed event(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, replay(ctx, &buf, svc, []string{"12"}))
	assert.Equal(t, []int64{12}, svc.ids)

	assert.Error(t, replay(ctx, &buf, svc, []string{"abc"}))

	svc.err = outbox.ErrEventNotFound
	assert.True(t, errors.Is(replay(ctx, &buf, svc, []string{"99"}), outbox.ErrEventNotFound))
}

func TestCreateUser(t *testing.T) {
	store := testutil.NewMemStore()
	auth := service.NewAuthService(store.Users(), nil, "cli-test-secret-123", time.Hour, zap.NewNop())
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, createUser(ctx, &buf, auth, "root@example.com", "Root", "password123", model.RoleAdmin))
	assert.Contains(t, buf.String(), "role ADMIN")

	u, err := store.Users().FindByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	err = createUser(ctx, &buf, auth, "root@example.com", "Root", "password123", model.RoleAdmin)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestProbe(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	require.NoError(t, probe(context.Background(), &buf, srv.URL, time.Second))
	assert.Contains(t, buf.String(), "ready")

	ready = false
	err := probe(context.Background(), &buf, srv.URL, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
