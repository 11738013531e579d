package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-task-assistant/internal/availability"
	"github.com/tbourn/go-task-assistant/internal/domain"
	"github.com/tbourn/go-task-assistant/internal/ratelimit"
	"github.com/tbourn/go-task-assistant/internal/repo"
	"github.com/tbourn/go-task-assistant/internal/services"
	"github.com/tbourn/go-task-assistant/internal/webhook"
)

const (
	testSecret = "relay-secret"
	sender     = "+15550001111"
	stranger   = "+15559998888"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	// Single connection so concurrent transactions queue instead of hitting
	// SQLITE_BUSY on the shared in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestPipeline(t *testing.T, db *gorm.DB) *Pipeline {
	t.Helper()
	return &Pipeline{
		DB:       db,
		Secret:   []byte(testSecret),
		Allowed:  func(s string) bool { return s == sender },
		Limiter:  ratelimit.NewLimiter(db, 10, time.Minute),
		Executor: &services.Executor{DB: db},
	}
}

// delivery builds a signed delivery the way the webhook handler would.
func delivery(id, from, body string) Delivery {
	raw := []byte("MessageSid=" + id + "&From=" + from + "&Body=" + body)
	return Delivery{
		RawBody:    raw,
		Signature:  webhook.Sign([]byte(testSecret), raw),
		DeliveryID: id,
		Sender:     from,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
}

func eventTypes(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	events, err := repo.ListAuditEvents(context.Background(), db)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestProcess_SuccessFlow(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	ctx := context.Background()

	out := p.Process(ctx, delivery("SM001", sender, "/newlist groceries"))
	if out.Status != StatusOK || out.Stage != StageExecute || out.Reason != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.Reply, "Created list 1") {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}

	got := eventTypes(t, db)
	want := []string{domain.EventMessageReceived, domain.EventCommandExecuted}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("audit trail = %v, want %v", got, want)
	}
}

func TestProcess_BadSignature_LeavesOnlyAuthFail(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	d := delivery("SM001", sender, "/lists")
	d.Signature = "sha256=" + strings.Repeat("00", 32)

	out := p.Process(context.Background(), d)
	if out.Status != StatusAuthFailure || out.Stage != StageVerify {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	got := eventTypes(t, db)
	if len(got) != 1 || got[0] != domain.EventAuthFail {
		t.Fatalf("expected only AUTH_FAIL, got %v", got)
	}

	// The delivery ID must remain unconsumed: the same ID with a valid
	// signature goes through.
	out = p.Process(context.Background(), delivery("SM001", sender, "/lists"))
	if out.Status != StatusOK {
		t.Fatalf("valid retry after auth failure should pass, got %+v", out)
	}

	var count int64
	if err := db.Model(&domain.InboundMessage{}).Count(&count).Error; err != nil {
		t.Fatalf("count inbound: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 inbound message, got %d", count)
	}
}

func TestProcess_ReplayRejected(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	ctx := context.Background()

	first := p.Process(ctx, delivery("SM001", sender, "/newlist groceries"))
	if first.Status != StatusOK {
		t.Fatalf("first delivery should pass: %+v", first)
	}

	// Same delivery ID, even with a different body, is a replay.
	second := p.Process(ctx, delivery("SM001", sender, "/newlist other"))
	if second.Status != StatusReplay || second.Stage != StageDedup {
		t.Fatalf("unexpected replay outcome: %+v", second)
	}

	got := eventTypes(t, db)
	want := []string{domain.EventMessageReceived, domain.EventCommandExecuted, domain.EventReplayRejected}
	if len(got) != 3 || got[2] != want[2] {
		t.Fatalf("audit trail = %v, want %v", got, want)
	}

	// No second list, no second inbound row.
	var lists int64
	if err := db.Model(&domain.List{}).Count(&lists).Error; err != nil {
		t.Fatalf("count lists: %v", err)
	}
	if lists != 1 {
		t.Fatalf("replay must not mutate state, got %d lists", lists)
	}
}

func TestProcess_ConcurrentDuplicates_ExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	const n = 8
	results := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Process(context.Background(), delivery("SM001", sender, "/newlist groceries"))
		}(i)
	}
	wg.Wait()

	var ok, replay int
	for _, out := range results {
		switch out.Status {
		case StatusOK:
			ok++
		case StatusReplay:
			replay++
		default:
			t.Fatalf("unexpected outcome: %+v", out)
		}
	}
	if ok != 1 || replay != n-1 {
		t.Fatalf("expected exactly one accepted delivery, got ok=%d replay=%d", ok, replay)
	}

	var lists int64
	if err := db.Model(&domain.List{}).Count(&lists).Error; err != nil {
		t.Fatalf("count lists: %v", err)
	}
	if lists != 1 {
		t.Fatalf("expected 1 list, got %d", lists)
	}
}

func TestProcess_SenderNotAllowed(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	out := p.Process(context.Background(), delivery("SM001", stranger, "/lists"))
	if out.Status != StatusAuthFailure || out.Stage != StageAuthorize {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	got := eventTypes(t, db)
	// The delivery passed verification and dedup, so MESSAGE_RECEIVED exists.
	want := []string{domain.EventMessageReceived, domain.EventAuthFail}
	if len(got) != 2 || got[1] != want[1] {
		t.Fatalf("audit trail = %v, want %v", got, want)
	}
}

func TestProcess_RateLimited(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	p.Limiter = ratelimit.NewLimiter(db, 2, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		out := p.Process(ctx, delivery(fmt.Sprintf("SM%03d", i), sender, "/lists"))
		if out.Status != StatusOK {
			t.Fatalf("delivery %d should pass: %+v", i, out)
		}
	}

	out := p.Process(ctx, delivery("SM003", sender, "/lists"))
	if out.Status != StatusRateLimited || out.Stage != StageRateLimit {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	got := eventTypes(t, db)
	if got[len(got)-1] != domain.EventRateLimited {
		t.Fatalf("last event should be RATE_LIMITED, got %v", got)
	}
}

func TestProcess_ParseError_IsUserVisible(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	out := p.Process(context.Background(), delivery("SM001", sender, "/frobnicate"))
	if out.Status != StatusOK || out.Stage != StageParse {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Reason != "unknown_command" {
		t.Fatalf("unexpected reason: %q", out.Reason)
	}
	if !strings.Contains(out.Reply, "/newlist <name>") {
		t.Fatalf("reply should include command help: %q", out.Reply)
	}

	got := eventTypes(t, db)
	want := []string{domain.EventMessageReceived, domain.EventCommandRejected}
	if len(got) != 2 || got[1] != want[1] {
		t.Fatalf("audit trail = %v, want %v", got, want)
	}
}

func TestProcess_DomainError_IsUserVisible(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	out := p.Process(context.Background(), delivery("SM001", sender, "/todo Milk"))
	if out.Status != StatusOK || out.Stage != StageExecute || out.Reason != "no_active_list" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.Reply, "/use <id>") {
		t.Fatalf("reply should tell the sender how to recover: %q", out.Reply)
	}

	got := eventTypes(t, db)
	if got[len(got)-1] != domain.EventCommandRejected {
		t.Fatalf("last event should be COMMAND_REJECTED, got %v", got)
	}
}

// TestProcess_AuditLogReconstructsState replays COMMAND_EXECUTED metadata
// into a plain model and checks it matches the database. The audit log is
// the authoritative record; if this fails, the metadata lost information.
func TestProcess_AuditLogReconstructsState(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	ctx := context.Background()

	script := []string{
		"/newlist groceries",
		"/use 1",
		"/todo Milk",
		"/todo Eggs",
		"/done 1",
		"/newlist chores",
	}
	for i, body := range script {
		out := p.Process(ctx, delivery(fmt.Sprintf("SM%03d", i), sender, body))
		if out.Status != StatusOK || out.Reason != "" {
			t.Fatalf("step %q failed: %+v", body, out)
		}
	}

	type itemState struct {
		text string
		done bool
	}
	// list_id -> name, and list_id -> item_id -> state
	lists := map[float64]string{}
	items := map[float64]map[float64]itemState{}
	var active float64

	events, err := repo.ListAuditEvents(ctx, db)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	for _, ev := range events {
		if ev.EventType != domain.EventCommandExecuted {
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(ev.Metadata), &meta); err != nil {
			t.Fatalf("metadata not JSON: %v", err)
		}
		switch meta["cmd"] {
		case "/newlist":
			id := meta["list_id"].(float64)
			lists[id] = meta["name"].(string)
			items[id] = map[float64]itemState{}
		case "/use":
			active = meta["list_id"].(float64)
		case "/todo":
			id := meta["list_id"].(float64)
			items[id][meta["item_id"].(float64)] = itemState{text: meta["text"].(string)}
		case "/done":
			id := meta["list_id"].(float64)
			st := items[id][meta["item_id"].(float64)]
			st.done = true
			items[id][meta["item_id"].(float64)] = st
		}
	}

	// Compare the replayed model against the database.
	var dbLists []domain.List
	if err := db.Order("id").Find(&dbLists).Error; err != nil {
		t.Fatalf("find lists: %v", err)
	}
	if len(dbLists) != len(lists) {
		t.Fatalf("replay has %d lists, db has %d", len(lists), len(dbLists))
	}
	for _, l := range dbLists {
		if lists[float64(l.ID)] != l.Name {
			t.Fatalf("list %d: replayed name %q, db %q", l.ID, lists[float64(l.ID)], l.Name)
		}
	}

	var dbItems []domain.Item
	if err := db.Find(&dbItems).Error; err != nil {
		t.Fatalf("find items: %v", err)
	}
	for _, it := range dbItems {
		got := items[float64(it.ListID)][float64(it.ItemID)]
		if got.text != it.Text || got.done != it.Done {
			t.Fatalf("item %d/%d: replayed %+v, db text=%q done=%v", it.ListID, it.ItemID, got, it.Text, it.Done)
		}
	}

	var pref domain.Preference
	if err := db.Where("sender = ?", sender).First(&pref).Error; err != nil {
		t.Fatalf("find preference: %v", err)
	}
	if float64(pref.ActiveListID) != active {
		t.Fatalf("replayed active list %v, db %d", active, pref.ActiveListID)
	}
}

type staticAdvisor struct{ snap *services.Snapshot }

func (a *staticAdvisor) Suggest(_ context.Context, snap *services.Snapshot) (string, error) {
	a.snap = snap
	return "Do task 1 first.", nil
}

type staticBusy struct{ blocks []availability.Block }

func (b *staticBusy) BusyBlocks(_ context.Context, _, _ time.Time) ([]availability.Block, error) {
	return b.blocks, nil
}

type failingBusy struct{}

func (failingBusy) BusyBlocks(_ context.Context, _, _ time.Time) ([]availability.Block, error) {
	return nil, errors.New("calendar unreachable")
}

func TestProcess_Suggest(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	adv := &staticAdvisor{}
	p.Advisor = adv
	p.Calendar = &staticBusy{}
	p.Windows = availability.Windows{
		Location:  time.UTC,
		WorkStart: availability.HHMM{Hour: 9},
		WorkEnd:   availability.HHMM{Hour: 17},
		LateStart: availability.HHMM{Hour: 22},
		LateEnd:   availability.HHMM{Hour: 1},
		MinBlock:  30 * time.Minute,
	}
	p.Horizon = 24 * time.Hour

	out := p.Process(context.Background(), delivery("SM001", sender, "/suggest"))
	if out.Status != StatusOK || out.Reply != "Do task 1 first." {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if adv.snap == nil {
		t.Fatalf("advisor never called")
	}
}

func TestProcess_Suggest_CalendarFailureDegrades(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)
	adv := &staticAdvisor{}
	p.Advisor = adv
	p.Calendar = failingBusy{}

	out := p.Process(context.Background(), delivery("SM001", sender, "/suggest"))
	if out.Status != StatusOK {
		t.Fatalf("calendar failure must not fail /suggest: %+v", out)
	}
	if adv.snap == nil || adv.snap.FreeBlocks != nil {
		t.Fatalf("expected suggestion without availability, got %+v", adv.snap)
	}
}

func TestProcess_Suggest_Disabled(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db)

	out := p.Process(context.Background(), delivery("SM001", sender, "/suggest"))
	if out.Status != StatusOK || out.Reason != "advisory_disabled" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.Reply, "not enabled") {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
}
