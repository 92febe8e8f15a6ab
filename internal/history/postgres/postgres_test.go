package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	session := uuid.New()
	for _, e := range []history.Event{
		{Session: session, Type: history.EventDelivered, Category: gesture.CategorySwipe, GestureID: 7, Phase: gesture.PhaseStart, OccurredAt: time.Now().UTC()},
		{Session: session, Type: history.EventSuppressed, Category: gesture.CategorySwipe, GestureID: 7, Phase: gesture.PhaseUpdate, OccurredAt: time.Now().UTC()},
		{Session: session, Type: history.EventPruned, Category: gesture.CategorySwipe, GestureID: 7, Phase: gesture.PhaseStop, OccurredAt: time.Now().UTC()},
	} {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	err = sink.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+Table+" WHERE session = $1 AND gesture_id = $2", session.String(), 7).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query %s: %v", Table, err)
	}
	if count != 3 {
		t.Errorf("Expected 3 events in history, got %d", count)
	}
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
