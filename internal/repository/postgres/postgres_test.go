package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/sakif/facet/internal/apperror"
	"github.com/sakif/facet/internal/model"
	"github.com/sakif/facet/internal/repository"
)

func setupMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		conn.Close()
	})
	return NewWithDB(conn), mock
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

var collectionCols = []string{"id", "user_id", "title", "description", "is_public", "position", "created_at", "count"}
var repoCols = []string{"id", "collection_id", "owner", "repo_name", "full_name", "description", "note", "position", "created_at"}

func TestUpsertProfile_ReadsBackCreatedAt(t *testing.T) {
	db, mock := setupMock(t)
	stored := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(upsertProfileSQL)).
		WithArgs("42", "alice", "Alice", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(stored))

	p := &model.Profile{ID: "42", GitHubUsername: "alice", DisplayName: "Alice"}
	if err := db.UpsertProfile(context.Background(), p); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}
	if !p.CreatedAt.Equal(stored) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, stored)
	}
}

func TestUpsertProfile_UniqueViolation(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(upsertProfileSQL)).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := db.UpsertProfile(context.Background(), &model.Profile{ID: "2", GitHubUsername: "alice"})
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Errorf("UpsertProfile() error = %v, want ErrDuplicate", err)
	}
}

func TestFindProfileByUsername_Missing(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(findProfileSQL)).
		WithArgs("Nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, found, err := db.FindProfileByUsername(context.Background(), "Nobody")
	if err != nil {
		t.Fatalf("FindProfileByUsername() error = %v", err)
	}
	if found || p != nil {
		t.Errorf("got %v, %v; want nil, false", p, found)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(getProfileSQL)).
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetProfile(context.Background(), "x")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
}

func TestListUsernames(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(listUsernamesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"github_username"}).AddRow("alice").AddRow("bob"))

	got, err := db.ListUsernames(context.Background())
	if err != nil {
		t.Fatalf("ListUsernames() error = %v", err)
	}
	if len(got) != 2 || got[0] != "alice" {
		t.Errorf("ListUsernames() = %v", got)
	}
}

func TestListCollections(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q(listCollectionsSQL)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(collectionCols).
			AddRow("c1", "u1", "Tools", "", true, 0, now, 3).
			AddRow("c2", "u1", "Games", "fun", true, 1, now, 0))

	got, err := db.ListCollections(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListCollections() error = %v", err)
	}
	if len(got) != 2 || got[0].Title != "Tools" || got[0].Count != 3 || got[1].Position != 1 {
		t.Errorf("unexpected collections: %+v", got)
	}
}

func TestListCollections_QueryError(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(listCollectionsSQL)).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	if _, err := db.ListCollections(context.Background(), "u1"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestCreateCollection(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(createCollectionSQL)).
		WithArgs(sqlmock.AnyArg(), "u1", "Tools", "", true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(4))

	c := &model.Collection{UserID: "u1", Title: "Tools", IsPublic: true}
	if err := db.CreateCollection(context.Background(), c); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	if c.ID == "" || c.Position != 4 {
		t.Errorf("got id=%q position=%d, want generated id and 4", c.ID, c.Position)
	}
}

func TestUpdateCollection_NotOwned(t *testing.T) {
	db, mock := setupMock(t)
	title := "new"

	mock.ExpectQuery(q(updateCollectionSQL)).
		WithArgs("new", nil, "c1", "u2").
		WillReturnRows(sqlmock.NewRows(collectionCols))

	_, err := db.UpdateCollection(context.Background(), "u2", "c1", model.CollectionUpdate{Title: &title})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateCollection() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCollection(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectExec(q(deleteCollectionSQL)).
		WithArgs("c1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(deleteCollectionSQL)).
		WithArgs("c1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.DeleteCollection(context.Background(), "u1", "c1"); err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if err := db.DeleteCollection(context.Background(), "u2", "c1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteCollection() by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestReorderCollections_SingleStatement(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectExec(q(reorderCollectionsSQL)).
		WithArgs("u1", pq.Array([]string{"c2", "c1"}), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ordered := []model.Collection{{ID: "c2", Title: "b"}, {ID: "c1", Title: "a"}}
	if err := db.ReorderCollections(context.Background(), "u1", ordered); err != nil {
		t.Fatalf("ReorderCollections() error = %v", err)
	}
}

func TestReorderCollections_EmptyIsNoop(t *testing.T) {
	db, _ := setupMock(t)

	if err := db.ReorderCollections(context.Background(), "u1", nil); err != nil {
		t.Errorf("ReorderCollections(nil) error = %v", err)
	}
}

func TestListCollectionRepos_NormalizesPaging(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q(countReposSQL)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q(listReposSQL)).
		WithArgs("c1", repository.DefaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows(repoCols).
			AddRow("r1", "c1", "alice", "tool", "alice/tool", "", "", 0, now))

	page, err := db.ListCollectionRepos(context.Background(), "c1", repository.ListOptions{Offset: -5})
	if err != nil {
		t.Fatalf("ListCollectionRepos() error = %v", err)
	}
	if page.Total != 1 || len(page.Repos) != 1 || page.Repos[0].FullName != "alice/tool" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestClaimedFullNames(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(claimedReposSQL)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"full_name"}).AddRow("alice/a").AddRow("alice/b"))

	got, err := db.ClaimedFullNames(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ClaimedFullNames() error = %v", err)
	}
	if len(got) != 2 || got[1] != "alice/b" {
		t.Errorf("ClaimedFullNames() = %v", got)
	}
}

func TestAddCollectionRepo(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		wantErr error
		wantPos int
	}{
		{
			name: "appended",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(q(addRepoSQL)).
					WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(2))
			},
			wantPos: 2,
		},
		{
			name: "collection not owned",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(q(addRepoSQL)).
					WillReturnRows(sqlmock.NewRows([]string{"position"}))
			},
			wantErr: apperror.ErrNotFound,
		},
		{
			name: "duplicate",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(q(addRepoSQL)).
					WillReturnError(&pq.Error{Code: uniqueViolation})
			},
			wantErr: apperror.ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMock(t)
			tt.setup(mock)

			r := &model.CollectionRepo{CollectionID: "c1", Owner: "alice", RepoName: "tool", FullName: "alice/tool"}
			err := db.AddCollectionRepo(context.Background(), "u1", r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("AddCollectionRepo() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddCollectionRepo() error = %v", err)
			}
			if r.Position != tt.wantPos {
				t.Errorf("Position = %d, want %d", r.Position, tt.wantPos)
			}
		})
	}
}

func TestRemoveCollectionRepo_NotOwned(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectExec(q(removeRepoSQL)).
		WithArgs("r1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.RemoveCollectionRepo(context.Background(), "u2", "r1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("RemoveCollectionRepo() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRepoNote(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(updateNoteSQL)).
		WithArgs("great", "r1", "u1").
		WillReturnRows(sqlmock.NewRows(repoCols).
			AddRow("r1", "c1", "alice", "tool", "alice/tool", "", "great", 0, time.Now()))

	r, err := db.UpdateRepoNote(context.Background(), "u1", "r1", "great")
	if err != nil {
		t.Fatalf("UpdateRepoNote() error = %v", err)
	}
	if r.Note != "great" {
		t.Errorf("Note = %q, want %q", r.Note, "great")
	}
}

func TestReorderCollectionRepos_RejectsForeignCollection(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(ownedCollectionCountSQL)).
		WithArgs("u2", pq.Array([]string{"c1"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ordered := []model.CollectionRepo{{ID: "r2", CollectionID: "c1"}, {ID: "r1", CollectionID: "c1"}}
	err := db.ReorderCollectionRepos(context.Background(), "u2", ordered)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ReorderCollectionRepos() error = %v, want ErrNotFound", err)
	}
}

func TestReorderCollectionRepos(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(q(ownedCollectionCountSQL)).
		WithArgs("u1", pq.Array([]string{"c1"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(q(reorderReposSQL)).
		WithArgs(pq.Array([]string{"r2", "r1"}), pq.Array([]string{"c1", "c1"}),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ordered := []model.CollectionRepo{{ID: "r2", CollectionID: "c1"}, {ID: "r1", CollectionID: "c1"}}
	if err := db.ReorderCollectionRepos(context.Background(), "u1", ordered); err != nil {
		t.Fatalf("ReorderCollectionRepos() error = %v", err)
	}
}

func TestTimestamp_FallbackForZero(t *testing.T) {
	fallback := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	if got := timestamp(time.Time{}, fallback); got != "2024-02-03T04:05:06Z" {
		t.Errorf("timestamp(zero) = %q", got)
	}
}
