package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCreateList_DuplicateNamePerOwner(t *testing.T) {
	db := newTestDB(t)

	l1, err := CreateList(db, "+15550001111", "groceries")
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if l1.ID == 0 {
		t.Fatalf("expected assigned list ID, got %+v", l1)
	}

	if _, err := CreateList(db, "+15550001111", "groceries"); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate for same owner+name, got %v", err)
	}

	// Another sender may reuse the name.
	if _, err := CreateList(db, "+15550002222", "groceries"); err != nil {
		t.Fatalf("other owner should reuse name: %v", err)
	}
}

func TestListLists_OrderedAndScoped(t *testing.T) {
	db := newTestDB(t)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := CreateList(db, "+1555", name); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	if _, err := CreateList(db, "+1666", "other"); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	out, err := ListLists(context.Background(), db, "+1555")
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 lists, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].ID <= out[i-1].ID {
			t.Fatalf("lists not ordered by id: %+v", out)
		}
	}
}

func TestCreateItem_MonotonicPerList(t *testing.T) {
	db := newTestDB(t)

	a, _ := CreateList(db, "+1555", "a")
	b, _ := CreateList(db, "+1555", "b")

	for i := 1; i <= 3; i++ {
		it, err := CreateItem(db, a.ID, fmt.Sprintf("task %d", i))
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		if it.ItemID != int64(i) {
			t.Fatalf("expected item id %d in list a, got %d", i, it.ItemID)
		}
	}

	// Numbering restarts per list.
	it, err := CreateItem(db, b.ID, "first in b")
	if err != nil {
		t.Fatalf("CreateItem list b: %v", err)
	}
	if it.ItemID != 1 {
		t.Fatalf("expected item id 1 in list b, got %d", it.ItemID)
	}
}

func TestMarkItemDone(t *testing.T) {
	db := newTestDB(t)
	l, _ := CreateList(db, "+1555", "a")
	it, _ := CreateItem(db, l.ID, "task")

	now := time.Now().UTC()
	if err := MarkItemDone(db, l.ID, it.ItemID, now); err != nil {
		t.Fatalf("MarkItemDone: %v", err)
	}

	got, err := GetItem(db, l.ID, it.ItemID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.Done || got.CompletedAt == nil {
		t.Fatalf("expected done with completed_at set, got %+v", got)
	}

	// Missing item maps to ErrNotFound.
	if err := MarkItemDone(db, l.ID, 99, now); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreference_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetPreference(ctx, db, "+1555"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before any /use, got %v", err)
	}

	if err := SetPreference(db, "+1555", 1); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := SetPreference(db, "+1555", 2); err != nil {
		t.Fatalf("SetPreference upsert: %v", err)
	}

	p, err := GetPreference(ctx, db, "+1555")
	if err != nil {
		t.Fatalf("GetPreference: %v", err)
	}
	if p.ActiveListID != 2 {
		t.Fatalf("expected active list 2, got %d", p.ActiveListID)
	}
}

func TestInsertDedup_RejectsReplay(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	if err := InsertDedup(db, "SM123", now); err != nil {
		t.Fatalf("first InsertDedup: %v", err)
	}
	if err := InsertDedup(db, "SM123", now.Add(time.Second)); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate on replay, got %v", err)
	}
	if err := InsertDedup(db, "SM124", now); err != nil {
		t.Fatalf("distinct delivery id: %v", err)
	}
}

func TestInsertInbound_Unique(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	if err := InsertInbound(db, "SM1", "+1555", "/lists", now); err != nil {
		t.Fatalf("InsertInbound: %v", err)
	}
	if err := InsertInbound(db, "SM1", "+1555", "/lists", now); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRateWindow_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	start := time.Now().UTC().Truncate(time.Second)

	if _, err := GetRateWindow(db, "+1555"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	w := &domain.RateWindow{Sender: "+1555", WindowStart: start, Count: 1}
	if err := SaveRateWindow(db, w); err != nil {
		t.Fatalf("SaveRateWindow: %v", err)
	}
	w.Count = 5
	if err := SaveRateWindow(db, w); err != nil {
		t.Fatalf("SaveRateWindow upsert: %v", err)
	}

	got, err := GetRateWindow(db, "+1555")
	if err != nil {
		t.Fatalf("GetRateWindow: %v", err)
	}
	if got.Count != 5 {
		t.Fatalf("expected count 5, got %d", got.Count)
	}
}

func TestAppendAudit_AndScan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := AppendAudit(db, "+1555", domain.EventMessageReceived, map[string]any{"delivery_id": "SM1"}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if _, err := AppendAudit(db, "+1555", domain.EventCommandExecuted, nil); err != nil {
		t.Fatalf("AppendAudit nil metadata: %v", err)
	}
	if _, err := AppendAudit(db, "+1666", domain.EventAuthFail, map[string]any{"reason": "sender_not_allowed"}); err != nil {
		t.Fatalf("AppendAudit other sender: %v", err)
	}

	all, err := ListAuditEvents(ctx, db)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].EventID <= all[i-1].EventID {
			t.Fatalf("events not in insertion order: %+v", all)
		}
	}

	// nil metadata must still be a valid JSON object.
	var meta map[string]any
	if err := json.Unmarshal([]byte(all[1].Metadata), &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}

	mine, err := ListAuditEventsBySender(ctx, db, "+1555")
	if err != nil {
		t.Fatalf("ListAuditEventsBySender: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 events for sender, got %d", len(mine))
	}
}
