package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/internal/database"
	"github.com/severstroy/matcat/internal/testdb"
	"gorm.io/gorm"
)

type widget struct {
	id        string
	name      string
	createdAt time.Time
}

type widgetRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (widgetRow) TableName() string { return "widgets" }

type widgetMapper struct{}

func (widgetMapper) ToDomain(e widgetRow) widget {
	return widget{id: e.ID, name: e.Name, createdAt: e.CreatedAt}
}

func (widgetMapper) ToModel(d widget) widgetRow {
	return widgetRow{ID: d.id, Name: d.name, CreatedAt: d.createdAt}
}

const widgetSchema = `CREATE TABLE widgets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL
)`

func seedWidgets(t *testing.T, db database.Database) database.Repository[widget, widgetRow] {
	t.Helper()
	ctx := context.Background()
	repo := database.NewRepository[widget, widgetRow](db, widgetMapper{}, "widget")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []widgetRow{
		{ID: "a", Name: "anchor bolt", CreatedAt: base},
		{ID: "b", Name: "brick", CreatedAt: base.Add(24 * time.Hour)},
		{ID: "c", Name: "cement", CreatedAt: base.Add(48 * time.Hour)},
	}
	if err := db.Session(ctx).Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo
}

func TestRepositoryFindWithConditions(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)
	ctx := context.Background()

	got, err := repo.Find(ctx, repository.WithCondition("id", "b"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestRepositoryLikeAndRange(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)
	ctx := context.Background()

	got, err := repo.Find(ctx, repository.WithLike("name", "%ric%"))
	if err != nil {
		t.Fatalf("Find LIKE: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LIKE len = %d", len(got))
	}

	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	// half-open range keeps "b" (on from) and excludes "c" (on to)
	got, err = repo.Find(ctx, repository.WithRange("created_at", from, to))
	if err != nil {
		t.Fatalf("Find range: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("range len = %d", len(got))
	}
}

func TestRepositoryOrderLimitOffset(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)
	ctx := context.Background()

	got, err := repo.Find(ctx,
		repository.WithOrder("created_at", false),
		repository.WithLimit(1),
		repository.WithOffset(1),
	)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestRepositoryFindOneNotFound(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)

	_, err := repo.FindOne(context.Background(), repository.WithCondition("id", "zzz"))
	if err == nil {
		t.Fatal("FindOne on a missing row must fail")
	}
}

func TestRepositoryCountAndDelete(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, err %v", n, err)
	}
	if err := repo.DeleteBy(ctx, repository.WithCondition("id", "a")); err != nil {
		t.Fatalf("DeleteBy: %v", err)
	}
	n, _ = repo.Count(ctx)
	if n != 2 {
		t.Fatalf("Count after delete = %d", n)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := testdb.WithSchema(t, widgetSchema)
	repo := seedWidgets(t, db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := database.WithTransaction(ctx, db, func(tx *gorm.DB) error {
		if err := tx.Create(&widgetRow{ID: "d", Name: "drywall", CreatedAt: time.Now()}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	n, _ := repo.Count(ctx)
	if n != 3 {
		t.Fatalf("rolled-back insert visible, count = %d", n)
	}
}
