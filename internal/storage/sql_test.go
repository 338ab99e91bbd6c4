package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestNewMySQLSlot_InvalidDSN(t *testing.T) {
	if _, err := NewMySQLSlot(context.Background(), "not a dsn"); err == nil {
		t.Fatal("expected error for invalid dsn")
	}
}

func TestNewPostgresSlot_RequiresURL(t *testing.T) {
	if _, err := NewPostgresSlot(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func exerciseSQLSlot(t *testing.T, s *SQLSlot) {
	t.Helper()
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrSlotEmpty) {
		t.Fatalf("err=%v want ErrSlotEmpty", err)
	}
	if err := s.Put(ctx, key, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, key, []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Fatalf("got %s", got)
	}
}

func TestMySQLSlot_Integration(t *testing.T) {
	dsn := os.Getenv("TODO_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TODO_MYSQL_DSN not set (integration test)")
	}
	s, err := NewMySQLSlot(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseSQLSlot(t, s)
}

func TestPostgresSlot_Integration(t *testing.T) {
	url := os.Getenv("TODO_POSTGRES_URL")
	if url == "" {
		t.Skip("TODO_POSTGRES_URL not set (integration test)")
	}
	s, err := NewPostgresSlot(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseSQLSlot(t, s)
}
