package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/audit"
	"github.com/minivault/inventory-backend/internal/cache"
	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/repo"
)

var cacheSeq int

func newMiniatureService(t *testing.T, db *gorm.DB) *MiniatureService {
	t.Helper()
	cacheSeq++
	s := NewMiniatureService(db, gormRepo{}, nopLogger())
	s.Cache = cache.New[domain.Miniature]("svc_test_"+strings.Repeat("i", cacheSeq), time.Minute)
	s.Bus = events.NewBus(nopLogger(), 0)
	s.Audit = audit.NewRecorder(db, nopLogger())
	t.Cleanup(s.Bus.Close)
	return s
}

func seedType(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	ty := domain.MiniatureType{Name: name}
	if err := repo.CreateType(context.Background(), db, &ty); err != nil {
		t.Fatalf("seed type %s: %v", name, err)
	}
	return ty.ID
}

func auditRows(t *testing.T, db *gorm.DB, id int64) []domain.AuditLog {
	t.Helper()
	rows, err := repo.ListAuditLogsPage(context.Background(), db, id, 0, 100)
	if err != nil {
		t.Fatalf("audit rows: %v", err)
	}
	return rows
}

func TestCreate_ScenarioGoblinArcher(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Goblin Archer", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == 0 || m.Name != "Goblin Archer" || m.Quantity != 3 {
		t.Fatalf("created = %+v", m)
	}
	if m.PaintedByID != 1 || m.BaseSizeID != 1 {
		t.Fatalf("defaults not applied: %+v", m)
	}

	rows := auditRows(t, db, m.ID)
	if len(rows) != 1 {
		t.Fatalf("audit rows = %d; want exactly one create entry", len(rows))
	}
	if rows[0].Action != audit.ActionMiniatureCreate {
		t.Fatalf("action = %q", rows[0].Action)
	}
	var snap map[string]interface{}
	if err := json.Unmarshal([]byte(*rows[0].Changes), &snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap["name"] != "Goblin Archer" || snap["quantity"] != float64(3) {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestCreate_Validation(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	if _, err := s.Create(ctx, "u1", MiniatureInput{Name: "   "}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("err = %v; want ErrNameRequired", err)
	}
	if _, err := s.Create(ctx, "u1", MiniatureInput{Name: "x", Quantity: -1}); !errors.Is(err, ErrNegativeQuantity) {
		t.Fatalf("err = %v; want ErrNegativeQuantity", err)
	}
}

func TestCreate_ReconcilesNegativeTagIDs(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	existing, err := repo.GetOrCreateTag(ctx, db, "metal")
	if err != nil {
		t.Fatalf("seed tag: %v", err)
	}

	m, err := s.Create(ctx, "u1", MiniatureInput{
		Name: "Ogre",
		Tags: []TagInput{
			{ID: existing.ID},
			{ID: -1, Name: "painted"},
			{ID: -2, Name: "Metal"}, // resolves to the existing tag, case-insensitively
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.ListTagsForMiniature(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("tags = %+v; want metal and painted only", got)
	}
	names := map[string]bool{}
	for _, tag := range got {
		names[tag.Name] = true
		if tag.ID <= 0 {
			t.Fatalf("unreconciled id on %+v", tag)
		}
	}
	if !names["metal"] || !names["painted"] {
		t.Fatalf("tag names = %v", names)
	}
}

func TestCreate_NegativeTagWithoutName(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)

	_, err := s.Create(context.Background(), "u1", MiniatureInput{
		Name: "Ogre",
		Tags: []TagInput{{ID: -1}},
	})
	if !errors.Is(err, ErrTagNameRequired) {
		t.Fatalf("err = %v; want ErrTagNameRequired", err)
	}
}

func TestUpdate_LocationOnlyDiff(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Goblin", Location: "Shelf A", Quantity: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.Update(ctx, "u1", m.ID, MiniatureInput{Name: "Goblin", Location: "Shelf B", Quantity: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows := auditRows(t, db, m.ID)
	if len(rows) != 2 {
		t.Fatalf("audit rows = %d; want create + update", len(rows))
	}
	var changes map[string]audit.Change
	if err := json.Unmarshal([]byte(*rows[0].Changes), &changes); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %v; want only location", changes)
	}
	c := changes["location"]
	if c.From != "Shelf A" || c.To != "Shelf B" {
		t.Fatalf("location = %+v", c)
	}
}

func TestUpdate_NoChangeWritesNoHistory(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Goblin", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Update(ctx, "u1", m.ID, MiniatureInput{Name: "Goblin", Quantity: 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rows := auditRows(t, db, m.ID); len(rows) != 1 {
		t.Fatalf("audit rows = %d; a no-op update must not log", len(rows))
	}
}

func TestUpdate_MainTypePromotion(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	infantry := seedType(t, db, "Infantry")
	cavalry := seedType(t, db, "Cavalry")
	beast := seedType(t, db, "Beast")

	m, err := s.Create(ctx, "u1", MiniatureInput{
		Name: "Centaur",
		Types: []TypeAssignment{
			{TypeID: infantry, ProxyType: false},
			{TypeID: cavalry, ProxyType: true},
			{TypeID: beast, ProxyType: true},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Remove the main type; the first remaining link must be promoted.
	upd, err := s.Update(ctx, "u1", m.ID, MiniatureInput{
		Name: "Centaur",
		Types: []TypeAssignment{
			{TypeID: cavalry, ProxyType: true},
			{TypeID: beast, ProxyType: true},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	mains := 0
	var mainType int64
	for _, l := range upd.Types {
		if !l.ProxyType {
			mains++
			mainType = l.TypeID
		}
	}
	if mains != 1 {
		t.Fatalf("main types = %d; want exactly 1", mains)
	}
	if mainType != cavalry {
		t.Fatalf("main = %d; want first remaining (%d)", mainType, cavalry)
	}
}

func TestNormalizeTypeLinks_MultipleMainsCollapseToFirst(t *testing.T) {
	links := normalizeTypeLinks(1, []TypeAssignment{
		{TypeID: 5, ProxyType: false},
		{TypeID: 6, ProxyType: false},
		{TypeID: 7, ProxyType: true},
	})
	if links[0].ProxyType || !links[1].ProxyType || !links[2].ProxyType {
		t.Fatalf("links = %+v; want only the first as main", links)
	}
}

// failTagRepo injects a failure into the tag-replace step only.
type failTagRepo struct {
	gormRepo
	err error
}

func (f failTagRepo) ReplaceTagLinks(ctx context.Context, db *gorm.DB, miniatureID int64, tagIDs []int64) error {
	return f.err
}

func TestUpdate_TagStepFailureLeavesEarlierStepsPersisted(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	infantry := seedType(t, db, "Infantry")
	cavalry := seedType(t, db, "Cavalry")

	m, err := s.Create(ctx, "u1", MiniatureInput{
		Name:  "Knight",
		Types: []TypeAssignment{{TypeID: infantry}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("tag write refused")
	s.Repo = failTagRepo{err: boom}

	_, err = s.Update(ctx, "u1", m.ID, MiniatureInput{
		Name:  "Knight Errant",
		Types: []TypeAssignment{{TypeID: cavalry}},
		Tags:  []TagInput{{ID: -1, Name: "wip"}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want the injected failure", err)
	}

	// Steps one and two are not rolled back.
	after, err := repo.GetMiniature(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Name != "Knight Errant" {
		t.Fatalf("scalar step lost: name = %q", after.Name)
	}
	if len(after.Types) != 1 || after.Types[0].TypeID != cavalry {
		t.Fatalf("type step lost: %+v", after.Types)
	}
}

func TestListPage_CachesAndInvalidatesOnWrite(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	if _, err := s.Create(ctx, "u1", MiniatureInput{Name: "Archer"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, total, err := s.ListPage(ctx, 1, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total = %d items = %d", total, len(items))
	}
	if s.Cache.Len() != 1 {
		t.Fatalf("cache entries = %d; want 1", s.Cache.Len())
	}

	// A write clears the whole cache.
	if _, err := s.Create(ctx, "u1", MiniatureInput{Name: "Bowman"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s.Cache.Len() != 0 {
		t.Fatalf("cache entries after write = %d; want 0", s.Cache.Len())
	}

	_, total, err = s.ListPage(ctx, 1, 0, "")
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d; want fresh data", total)
	}
}

func TestListPage_AdHocPageSizeBypassesCache(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	if _, err := s.Create(ctx, "u1", MiniatureInput{Name: "Archer"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := s.ListPage(ctx, 1, 5, ""); err != nil {
		t.Fatalf("list: %v", err)
	}
	if s.Cache.Len() != 0 {
		t.Fatalf("ad-hoc page size must not populate the cache; entries = %d", s.Cache.Len())
	}
}

func TestSetInUse_TwoAuditEntries(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Dragon"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ts := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SetInUse(ctx, "u1", m.ID, &ts); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetInUse(ctx, "u1", m.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}

	rows := auditRows(t, db, m.ID)
	if len(rows) != 3 {
		t.Fatalf("audit rows = %d; want create + set + clear", len(rows))
	}

	// Newest first: rows[0] is the clear, rows[1] the set.
	var clearChanges, setChanges map[string]audit.Change
	if err := json.Unmarshal([]byte(*rows[0].Changes), &clearChanges); err != nil {
		t.Fatalf("clear changes: %v", err)
	}
	if err := json.Unmarshal([]byte(*rows[1].Changes), &setChanges); err != nil {
		t.Fatalf("set changes: %v", err)
	}
	if setChanges["in_use"].From != nil || setChanges["in_use"].To == nil {
		t.Fatalf("set in_use = %+v; want null -> timestamp", setChanges["in_use"])
	}
	if clearChanges["in_use"].From == nil || clearChanges["in_use"].To != nil {
		t.Fatalf("clear in_use = %+v; want timestamp -> null", clearChanges["in_use"])
	}
}

func TestDelete_WritesSnapshotAndRow(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Lich", Location: "Display"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, "u1", m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(ctx, m.ID); !errors.Is(err, ErrMiniatureNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
	rows := auditRows(t, db, m.ID)
	if len(rows) != 2 || rows[0].Action != audit.ActionMiniatureDelete {
		t.Fatalf("rows = %+v; want delete entry on top", rows)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)

	_, err := s.Update(context.Background(), "u1", 9999, MiniatureInput{Name: "Ghost"})
	if !errors.Is(err, ErrMiniatureNotFound) {
		t.Fatalf("err = %v; want ErrMiniatureNotFound", err)
	}
}

func TestChangeEvents_PublishedOnWrites(t *testing.T) {
	db := newServiceDB(t)
	s := newMiniatureService(t, db)
	ctx := context.Background()

	var ops []events.Op
	defer s.Bus.Subscribe(events.TableMiniatures, func(ev events.Event) {
		ops = append(ops, ev.Op)
	})()

	m, err := s.Create(ctx, "u1", MiniatureInput{Name: "Wraith"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Update(ctx, "u1", m.ID, MiniatureInput{Name: "Wraith Lord"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(ctx, "u1", m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []events.Op{events.OpCreate, events.OpUpdate, events.OpDelete}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v; want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops = %v; want %v", ops, want)
		}
	}
}
