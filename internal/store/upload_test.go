package store

import (
	"testing"

	"github.com/cadenza-app/cadenza/internal/model"
)

func TestUploadCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	uploads := NewUploadStore(db)

	user, err := us.Create("Artist", "artist@example.com", model.RoleArtist)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	up, err := uploads.Create(user.ID, nil, model.UploadKindImage, "covers/a.png", "cover.png", 2048)
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if up.TrackID != nil {
		t.Fatal("upload without a track should have nil track id")
	}
	if up.Kind != model.UploadKindImage || up.SizeBytes != 2048 {
		t.Fatalf("upload = %+v, want image/2048", up)
	}

	got, err := uploads.GetByID(up.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if got == nil || got.Path != "covers/a.png" {
		t.Fatalf("got = %+v, want covers/a.png", got)
	}

	list, err := uploads.ListByUser(user.ID)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d uploads, want 1", len(list))
	}
}
