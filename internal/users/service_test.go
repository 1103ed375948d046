package users

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnsureUserUpsertsAndRefreshes(t *testing.T) {
	repo := NewMemoryRepo()
	svc := &Service{Repo: repo, Now: func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	}}
	ctx := context.Background()

	user, err := svc.EnsureUser(ctx, "user-1", "old@example.com", "Old Name")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user.Email != "old@example.com" {
		t.Fatalf("unexpected email %q", user.Email)
	}

	user, err = svc.EnsureUser(ctx, "user-1", "new@example.com", "New Name")
	if err != nil {
		t.Fatalf("EnsureUser repeat: %v", err)
	}
	if user.Email != "new@example.com" || user.DisplayName != "New Name" {
		t.Fatalf("repeat call should refresh fields, got %+v", user)
	}

	exists, err := repo.Exists(ctx, "user-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected user to exist")
	}
}

func TestGetByIDMissingUser(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
