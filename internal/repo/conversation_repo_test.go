package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

func newConvRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("conv_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, platformID string) *domain.User {
	t.Helper()
	u, err := FindOrCreateUser(context.Background(), db, platformID, nil, nil)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestCreateConversation_SetsFieldsAndPersists(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	start := time.Now().UTC().Add(-time.Minute)
	c, err := CreateConversation(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" || c.UserID != u.ID || c.Status != domain.ConversationActive {
		t.Fatalf("unexpected Conversation fields: %+v", c)
	}
	if c.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset: %v", c.CreatedAt)
	}

	got, err := GetConversation(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.UserID != u.ID || got.Status != domain.ConversationActive {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateConversation_SecondActiveRejected(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	if _, err := CreateConversation(context.Background(), db, u.ID); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := CreateConversation(context.Background(), db, u.ID)
	if !errors.Is(err, ErrActiveConversationExists) {
		t.Fatalf("expected ErrActiveConversationExists, got %v", err)
	}

	n, err := CountActiveConversations(context.Background(), db, u.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly 1 active conversation, got n=%d err=%v", n, err)
	}
}

func TestCreateConversation_AllowedAfterClose(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	c1, err := CreateConversation(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := UpdateConversationStatus(context.Background(), db, c1.ID, domain.ConversationCompleted); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := CreateConversation(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("create after close: %v", err)
	}
	if c2.ID == c1.ID {
		t.Fatalf("expected a new row, got the old one")
	}
}

func TestFindActiveConversation_PrefersNewest(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	// Seed two rows directly with distinct CreatedAt; only one is ACTIVE,
	// the other is terminal, so the partial index is not violated.
	old := &domain.Conversation{
		ID: "c-old", UserID: u.ID, Status: domain.ConversationCompleted,
		CreatedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	cur := &domain.Conversation{
		ID: "c-new", UserID: u.ID, Status: domain.ConversationActive,
		CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := db.Create(cur).Error; err != nil {
		t.Fatalf("seed cur: %v", err)
	}

	got, err := FindActiveConversation(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("FindActiveConversation: %v", err)
	}
	if got.ID != "c-new" {
		t.Fatalf("expected the ACTIVE row, got %+v", got)
	}
}

func TestFindActiveConversation_NotFound(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	_, err := FindActiveConversation(context.Background(), db, u.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateConversationStatus_MissingRow(t *testing.T) {
	db := newConvRepoDB(t)

	err := UpdateConversationStatus(context.Background(), db, "nope", domain.ConversationCompleted)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchConversation_BumpsUpdatedAt(t *testing.T) {
	db := newConvRepoDB(t)
	u := seedUser(t, db, "ig-1")

	c, err := CreateConversation(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	if err := TouchConversation(context.Background(), db, c.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := GetConversation(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UpdatedAt.Before(before) {
		t.Fatalf("UpdatedAt not bumped: %v", got.UpdatedAt)
	}
}

func TestIsUniqueViolation_TextVariants(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{gorm.ErrDuplicatedKey, true},
		{errors.New("UNIQUE constraint failed: conversations.user_id"), true},
		{errors.New("constraint failed: UNIQUE constraint failed: messages.dedup_key (1555)"), true},
		{errors.New("database is locked"), false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("isUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
