package sources

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/studykit-backend/internal/data/repos/testutil"
	types "github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/platform/dbctx"
)

func TestSourceRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewSourceRepo(db, testutil.Logger(t))

	created, err := repo.Create(dbc, []*types.Source{
		{StudyKitID: "kit-a", FileURL: "https://f/a.pdf", FileName: "a.pdf", FileType: "pdf"},
		{StudyKitID: "kit-a", FileURL: "https://f/b.txt", FileName: "b.txt"},
		{StudyKitID: "kit-b", FileURL: "https://f/c.docx", FileName: "c.docx"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, s := range created {
		if s.ID == uuid.Nil {
			t.Fatalf("Create should assign ids")
		}
	}
	testutil.SeedSource(t, ctx, tx, "kit-b", "done.pdf", true)

	if rows, err := repo.GetByStudyKit(dbc, "kit-a"); err != nil || len(rows) != 2 {
		t.Fatalf("GetByStudyKit: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.FetchUnprocessed(dbc, 0); err != nil || len(rows) != 3 {
		t.Fatalf("FetchUnprocessed: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.FetchUnprocessed(dbc, 2); err != nil || len(rows) != 2 {
		t.Fatalf("FetchUnprocessed limit: err=%v len=%d", err, len(rows))
	}

	ok, err := repo.MarkProcessed(dbc, created[0].ID, "pdf")
	if err != nil || !ok {
		t.Fatalf("MarkProcessed: ok=%v err=%v", ok, err)
	}
	got, err := repo.GetByID(dbc, created[0].ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if !got.Processed || got.LoaderUsed != "pdf" {
		t.Fatalf("after MarkProcessed: processed=%v loader=%q", got.Processed, got.LoaderUsed)
	}

	ok, err = repo.MarkProcessed(dbc, uuid.New(), "")
	if err != nil || ok {
		t.Fatalf("MarkProcessed unknown id: ok=%v err=%v", ok, err)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID unknown: %v %v", missing, err)
	}

	if rows, err := repo.FetchProcessed(dbc, "kit-a"); err != nil || len(rows) != 1 || rows[0].FileName != "a.pdf" {
		t.Fatalf("FetchProcessed kit-a: err=%v rows=%v", err, rows)
	}
	if rows, err := repo.FetchProcessed(dbc, ""); err != nil || len(rows) != 2 {
		t.Fatalf("FetchProcessed all: err=%v len=%d", err, len(rows))
	}

	processed, unprocessed, err := repo.CountByProcessed(dbc)
	if err != nil || processed != 2 || unprocessed != 2 {
		t.Fatalf("CountByProcessed: %d/%d err=%v", processed, unprocessed, err)
	}
}

func TestStoreUsesPlainContext(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	store := NewStore(NewSourceRepo(db, testutil.Logger(t)))

	src := testutil.SeedSource(t, ctx, db, "kit", "notes.md", false)
	if ok, err := store.MarkProcessed(ctx, src.ID, "text"); err != nil || !ok {
		t.Fatalf("MarkProcessed: %v %v", ok, err)
	}
	rows, err := store.FetchProcessed(ctx, "kit")
	if err != nil || len(rows) != 1 || rows[0].ID != src.ID {
		t.Fatalf("FetchProcessed: %v %v", rows, err)
	}
	if rows, err := store.FetchUnprocessed(ctx, 10); err != nil || len(rows) != 0 {
		t.Fatalf("FetchUnprocessed: %v %v", rows, err)
	}
}
