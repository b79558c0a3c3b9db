package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/minivault/inventory-backend/internal/domain"
)

// newRepoDB opens a throwaway on-disk SQLite database with the full schema.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
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

// seedLookups inserts the minimal painter/base-size rows miniatures require.
func seedLookups(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Create(&domain.PaintedBy{ID: 1, Name: "unpainted"}).Error; err != nil {
		t.Fatalf("seed painted_by: %v", err)
	}
	if err := db.Create(&domain.BaseSize{ID: 1, Name: "25mm round"}).Error; err != nil {
		t.Fatalf("seed base_sizes: %v", err)
	}
}

func mustCreateMiniature(t *testing.T, db *gorm.DB, name, location string) *domain.Miniature {
	t.Helper()
	m := &domain.Miniature{
		Name:        name,
		Location:    location,
		Quantity:    1,
		PaintedByID: 1,
		BaseSizeID:  1,
	}
	if err := CreateMiniature(context.Background(), db, m); err != nil {
		t.Fatalf("CreateMiniature(%q): %v", name, err)
	}
	return m
}

func TestCreateMiniature_AssignsID(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Goblin Archer", "Shelf A")
	if m.ID == 0 {
		t.Fatalf("expected DB-assigned id, got 0")
	}
	if m.CreatedAt.IsZero() || m.UpdatedAt.IsZero() {
		t.Fatalf("timestamps unset: %+v", m)
	}
}

func TestListMiniaturesPage_OrderAndWindow(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	for _, name := range []string{"zombie", "Archer", "goblin", "Basilisk"} {
		mustCreateMiniature(t, db, name, "")
	}

	page, err := ListMiniaturesPage(context.Background(), db, "", 0, 3)
	if err != nil {
		t.Fatalf("ListMiniaturesPage: %v", err)
	}
	got := []string{page[0].Name, page[1].Name, page[2].Name}
	want := []string{"Archer", "Basilisk", "goblin"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v; want %v", got, want)
		}
	}

	rest, err := ListMiniaturesPage(context.Background(), db, "", 3, 3)
	if err != nil {
		t.Fatalf("ListMiniaturesPage offset: %v", err)
	}
	if len(rest) != 1 || rest[0].Name != "zombie" {
		t.Fatalf("second page = %+v; want [zombie]", rest)
	}
}

func TestListMiniaturesPage_SearchIsCaseInsensitiveOverNameAndLocation(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	mustCreateMiniature(t, db, "Orc Warboss", "Shelf A")
	mustCreateMiniature(t, db, "Goblin", "ORC CRATE")
	mustCreateMiniature(t, db, "Paladin", "Shelf B")

	got, err := ListMiniaturesPage(context.Background(), db, "orc", 0, 10)
	if err != nil {
		t.Fatalf("ListMiniaturesPage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2 (name + location match): %+v", len(got), got)
	}

	total, err := CountMiniatures(context.Background(), db, "orc")
	if err != nil {
		t.Fatalf("CountMiniatures: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d; want 2", total)
	}
}

func TestListMiniaturesPage_EmptyResultIsEmptySlice(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	got, err := ListMiniaturesPage(context.Background(), db, "nothing-matches", 0, 10)
	if err != nil {
		t.Fatalf("expected no error for empty result, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestGetMiniature_PreloadsNestedRelations(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	// Product chain.
	co := domain.Company{Name: "Ironhold"}
	if err := CreateCompany(context.Background(), db, &co); err != nil {
		t.Fatalf("company: %v", err)
	}
	line := domain.ProductLine{Name: "Dungeon Core", CompanyID: co.ID}
	if err := CreateProductLine(context.Background(), db, &line); err != nil {
		t.Fatalf("line: %v", err)
	}
	set := domain.ProductSet{Name: "Starter Box", ProductLineID: line.ID}
	if err := CreateProductSet(context.Background(), db, &set); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Taxonomy.
	cat := domain.Category{Name: "Fantasy"}
	if err := CreateCategory(context.Background(), db, &cat); err != nil {
		t.Fatalf("category: %v", err)
	}
	ty := domain.MiniatureType{Name: "Infantry"}
	if err := CreateType(context.Background(), db, &ty); err != nil {
		t.Fatalf("type: %v", err)
	}
	if err := ReplaceTypeCategories(context.Background(), db, ty.ID, []int64{cat.ID}); err != nil {
		t.Fatalf("type categories: %v", err)
	}

	m := mustCreateMiniature(t, db, "Goblin", "Shelf A")
	if err := db.Model(&domain.Miniature{}).Where("id = ?", m.ID).Update("product_set_id", set.ID).Error; err != nil {
		t.Fatalf("set product set: %v", err)
	}
	if err := ReplaceTypeLinks(context.Background(), db, m.ID, []domain.MiniatureTypeLink{{TypeID: ty.ID, ProxyType: false}}); err != nil {
		t.Fatalf("type links: %v", err)
	}
	tag, err := GetOrCreateTag(context.Background(), db, "undead")
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if err := ReplaceTagLinks(context.Background(), db, m.ID, []int64{tag.ID}); err != nil {
		t.Fatalf("tag links: %v", err)
	}

	got, err := GetMiniature(context.Background(), db, m.ID)
	if err != nil {
		t.Fatalf("GetMiniature: %v", err)
	}
	if got.PaintedBy == nil || got.BaseSize == nil {
		t.Fatalf("lookup preloads missing: %+v", got)
	}
	if got.ProductSet == nil || got.ProductSet.ProductLine == nil || got.ProductSet.ProductLine.Company == nil {
		t.Fatalf("product chain not preloaded: %+v", got.ProductSet)
	}
	if got.ProductSet.ProductLine.Company.Name != "Ironhold" {
		t.Fatalf("company = %+v", got.ProductSet.ProductLine.Company)
	}
	if len(got.Types) != 1 || got.Types[0].Type == nil || len(got.Types[0].Type.Categories) != 1 {
		t.Fatalf("type chain not preloaded: %+v", got.Types)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "undead" {
		t.Fatalf("tags not preloaded: %+v", got.Tags)
	}
}

func TestGetMiniature_NotFound(t *testing.T) {
	db := newRepoDB(t)
	if _, err := GetMiniature(context.Background(), db, 12345); err != ErrNotFound {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestReplaceTypeLinks_ReplacesWholesale(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Troll", "")
	t1 := domain.MiniatureType{Name: "Monster"}
	t2 := domain.MiniatureType{Name: "Large"}
	for _, ty := range []*domain.MiniatureType{&t1, &t2} {
		if err := CreateType(context.Background(), db, ty); err != nil {
			t.Fatalf("type: %v", err)
		}
	}

	ctx := context.Background()
	if err := ReplaceTypeLinks(ctx, db, m.ID, []domain.MiniatureTypeLink{
		{TypeID: t1.ID, ProxyType: false},
	}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := ReplaceTypeLinks(ctx, db, m.ID, []domain.MiniatureTypeLink{
		{TypeID: t2.ID, ProxyType: false},
		{TypeID: t1.ID, ProxyType: true},
	}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	var links []domain.MiniatureTypeLink
	if err := db.Where("miniature_id = ?", m.ID).Order("type_id asc").Find(&links).Error; err != nil {
		t.Fatalf("load links: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("len(links) = %d; want 2", len(links))
	}
	if links[0].TypeID != t1.ID || !links[0].ProxyType {
		t.Fatalf("link[0] = %+v; want t1 proxy", links[0])
	}
	if links[1].TypeID != t2.ID || links[1].ProxyType {
		t.Fatalf("link[1] = %+v; want t2 main", links[1])
	}
}

func TestReplaceTagLinks_EmptyClearsAll(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Knight", "")
	tag, err := GetOrCreateTag(context.Background(), db, "metal")
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if err := ReplaceTagLinks(context.Background(), db, m.ID, []int64{tag.ID}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := ReplaceTagLinks(context.Background(), db, m.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var n int64
	if err := db.Model(&domain.MiniatureTag{}).Where("miniature_id = ?", m.ID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("links remaining = %d; want 0", n)
	}
}

func TestSetMiniatureInUse_SetAndClear(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Wizard", "")
	ts := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := SetMiniatureInUse(context.Background(), db, m.ID, ts); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := GetMiniature(context.Background(), db, m.ID)
	if got.InUse == nil || !got.InUse.Equal(ts) {
		t.Fatalf("in_use = %v; want %v", got.InUse, ts)
	}

	if err := SetMiniatureInUse(context.Background(), db, m.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = GetMiniature(context.Background(), db, m.ID)
	if got.InUse != nil {
		t.Fatalf("in_use = %v; want nil", got.InUse)
	}

	if err := SetMiniatureInUse(context.Background(), db, 99999, ts); err != ErrNotFound {
		t.Fatalf("missing row err = %v; want ErrNotFound", err)
	}
}

func TestDeleteMiniature(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Dragon", "")
	if err := DeleteMiniature(context.Background(), db, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetMiniature(context.Background(), db, m.ID); err != ErrNotFound {
		t.Fatalf("after delete err = %v; want ErrNotFound", err)
	}
	if err := DeleteMiniature(context.Background(), db, m.ID); err != ErrNotFound {
		t.Fatalf("double delete err = %v; want ErrNotFound", err)
	}
}

func TestUpdateMiniatureScalars_WritesZeroValues(t *testing.T) {
	db := newRepoDB(t)
	seedLookups(t, db)

	m := mustCreateMiniature(t, db, "Bard", "Shelf C")
	m.Location = ""
	m.Quantity = 0
	if err := UpdateMiniatureScalars(context.Background(), db, m.ID, m); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := GetMiniature(context.Background(), db, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Location != "" || got.Quantity != 0 {
		t.Fatalf("zero values not written: %+v", got)
	}
}
