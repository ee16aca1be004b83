package vidserver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/anatolykoptev/go_vidmark/internal/embed"
	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/anatolykoptev/go_vidmark/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func newTestTools(t *testing.T) *tools {
	t.Helper()
	engine.Init(engine.Config{DefaultUserID: "local"})
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &tools{svc: library.New(st)}
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "dev"}, nil)
	if n := RegisterTools(server, newTestTools(t).svc); n != toolCount {
		t.Errorf("RegisterTools = %d, want %d", n, toolCount)
	}
}

func TestVideoAddAndList(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, err := tl.svc.CreateList(ctx, "local", "Workouts")
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	added, err := tl.videoAdd(ctx, VideoAddInput{Title: "abs", URL: "https://youtu.be/abc123", ListID: l.ID})
	if err != nil {
		t.Fatalf("videoAdd: %v", err)
	}
	if added.Video.EmbedURL != "https://www.youtube.com/embed/abc123" || added.Video.ListID != l.ID {
		t.Errorf("added = %+v", added.Video)
	}

	out, err := tl.videoList(ctx, VideoListInput{})
	if err != nil {
		t.Fatalf("videoList: %v", err)
	}
	if out.Total != 1 || out.Videos[0].ListName != "Workouts" || out.Videos[0].Provider != embed.ProviderYouTube {
		t.Errorf("videoList = %+v", out)
	}

	favs, err := tl.videoList(ctx, VideoListInput{FavoritesOnly: true})
	if err != nil || favs.Total != 0 {
		t.Errorf("favorites = %+v, %v", favs, err)
	}

	lv, err := tl.listVideos(ctx, ListInput{ListID: l.ID})
	if err != nil {
		t.Fatalf("listVideos: %v", err)
	}
	if lv.Total != 1 || lv.Videos[0].ID != added.Video.ID {
		t.Errorf("listVideos = %+v", lv)
	}
}

func TestVideoAddForeignList(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, _ := tl.svc.CreateList(ctx, "someone-else", "Private")
	_, err := tl.videoAdd(ctx, VideoAddInput{Title: "x", URL: "https://youtu.be/x", ListID: l.ID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	videos, _ := tl.svc.GetUserVideos(ctx, "local")
	if len(videos) != 0 {
		t.Errorf("video should not be created, got %+v", videos)
	}
}

func TestVideoFavoriteAndDelete(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	added, err := tl.videoAdd(ctx, VideoAddInput{UserID: "u1", Title: "x", URL: "https://www.instagram.com/p/Cx1/"})
	if err != nil {
		t.Fatalf("videoAdd: %v", err)
	}
	id := added.Video.ID

	if _, err := tl.videoFavorite(ctx, VideoFavoriteInput{UserID: "u2", VideoID: id, IsFavorite: true}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign favorite: err = %v", err)
	}
	res, err := tl.videoFavorite(ctx, VideoFavoriteInput{UserID: "u1", VideoID: id, IsFavorite: true})
	if err != nil || !res.OK {
		t.Fatalf("videoFavorite = %+v, %v", res, err)
	}
	favs, _ := tl.videoList(ctx, VideoListInput{UserID: "u1", FavoritesOnly: true})
	if favs.Total != 1 {
		t.Errorf("favorites total = %d", favs.Total)
	}

	if _, err := tl.videoDelete(ctx, VideoDeleteInput{UserID: "u1"}); err == nil {
		t.Error("expected error for missing video_id")
	}
	if _, err := tl.videoDelete(ctx, VideoDeleteInput{UserID: "u1", VideoID: id}); err != nil {
		t.Fatalf("videoDelete: %v", err)
	}
	all, _ := tl.videoList(ctx, VideoListInput{UserID: "u1"})
	if all.Total != 0 {
		t.Errorf("videos after delete = %d", all.Total)
	}
}

func TestListGet(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	a, _ := tl.svc.CreateList(ctx, "local", "A")
	tl.svc.CreateList(ctx, "local", "B")

	all, err := tl.listGet(ctx, ListInput{})
	if err != nil || all.Total != 2 {
		t.Fatalf("listGet all = %+v, %v", all, err)
	}
	one, err := tl.listGet(ctx, ListInput{ListID: a.ID})
	if err != nil || one.Total != 1 || one.Lists[0].Name != "A" {
		t.Errorf("listGet one = %+v, %v", one, err)
	}
	if _, err := tl.listGet(ctx, ListInput{UserID: "intruder", ListID: a.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign listGet: err = %v", err)
	}
}

func TestLibraryCheck(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, _ := tl.svc.CreateList(ctx, "local", "L")
	if _, err := tl.videoAdd(ctx, VideoAddInput{Title: "x", URL: "https://youtu.be/x", ListID: l.ID}); err != nil {
		t.Fatalf("videoAdd: %v", err)
	}
	if err := tl.svc.DeleteList(ctx, l.ID); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}

	res, err := tl.libraryCheck(ctx, LibraryCheckInput{})
	if err != nil {
		t.Fatalf("libraryCheck: %v", err)
	}
	if res.Clean || len(res.DanglingListRefs) != 1 || res.Repaired {
		t.Errorf("check = %+v", res)
	}

	res, err = tl.libraryCheck(ctx, LibraryCheckInput{Repair: true})
	if err != nil || !res.Repaired {
		t.Fatalf("repair = %+v, %v", res, err)
	}
	res, _ = tl.libraryCheck(ctx, LibraryCheckInput{})
	if !res.Clean {
		t.Errorf("after repair = %+v", res)
	}
}

func TestListRenameAndDelete(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, _ := tl.svc.CreateList(ctx, "local", "A")

	if _, err := tl.listRename(ctx, ListRenameInput{UserID: "intruder", ListID: l.ID, Name: "X"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign rename: err = %v", err)
	}
	if _, err := tl.listRename(ctx, ListRenameInput{ListID: l.ID, Name: "B"}); err != nil {
		t.Fatalf("listRename: %v", err)
	}
	got, _ := tl.svc.GetList(ctx, l.ID)
	if got.Name != "B" {
		t.Errorf("name = %q, want B", got.Name)
	}

	if _, err := tl.listDelete(ctx, ListInput{UserID: "intruder", ListID: l.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign delete: err = %v", err)
	}
	if _, err := tl.listDelete(ctx, ListInput{ListID: l.ID}); err != nil {
		t.Fatalf("listDelete: %v", err)
	}
	if _, err := tl.svc.GetList(ctx, l.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("list after delete: err = %v", err)
	}
}

func TestListAddAndRemoveVideo(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, _ := tl.svc.CreateList(ctx, "local", "L")
	added, err := tl.videoAdd(ctx, VideoAddInput{Title: "x", URL: "https://youtu.be/x"})
	if err != nil {
		t.Fatalf("videoAdd: %v", err)
	}
	in := ListVideoInput{ListID: l.ID, VideoID: added.Video.ID}

	if _, err := tl.listAddVideo(ctx, in); err != nil {
		t.Fatalf("listAddVideo: %v", err)
	}
	lv, err := tl.listVideos(ctx, ListInput{ListID: l.ID})
	if err != nil || lv.Total != 1 || lv.Videos[0].ListName != "L" {
		t.Fatalf("listVideos = %+v, %v", lv, err)
	}

	if _, err := tl.listRemoveVideo(ctx, in); err != nil {
		t.Fatalf("listRemoveVideo: %v", err)
	}
	lv, _ = tl.listVideos(ctx, ListInput{ListID: l.ID})
	if lv.Total != 0 {
		t.Errorf("videos after remove = %d", lv.Total)
	}
	if _, err := tl.listRemoveVideo(ctx, ListVideoInput{ListID: l.ID}); err == nil {
		t.Error("expected error for missing video_id")
	}
}

func TestListVideoToolsRejectForeignVideo(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	ownerList, _ := tl.svc.CreateList(ctx, "owner", "Mine")
	v, err := tl.svc.AddVideo(ctx, library.NewVideo{Title: "x", URL: "https://youtu.be/x", UserID: "owner"}, ownerList.ID)
	if err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	intruderList, _ := tl.svc.CreateList(ctx, "intruder", "Theirs")
	in := ListVideoInput{UserID: "intruder", ListID: intruderList.ID, VideoID: v.ID}

	if _, err := tl.listAddVideo(ctx, in); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign add: err = %v", err)
	}
	if _, err := tl.listRemoveVideo(ctx, in); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign remove: err = %v", err)
	}
	if _, err := tl.listVideos(ctx, ListInput{UserID: "intruder", ListID: ownerList.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign listVideos: err = %v", err)
	}

	got, err := tl.svc.OwnedVideo(ctx, "owner", v.ID)
	if err != nil || got.ListID != ownerList.ID {
		t.Errorf("owner video = %+v, %v", got, err)
	}
	rep, err := tl.svc.CheckIntegrity(ctx, "owner")
	if err != nil || !rep.Clean() {
		t.Errorf("owner library = %+v, %v", rep, err)
	}
}

func TestListRemoveDeletedVideo(t *testing.T) {
	tl := newTestTools(t)
	ctx := context.Background()

	l, _ := tl.svc.CreateList(ctx, "local", "L")
	added, err := tl.videoAdd(ctx, VideoAddInput{Title: "x", URL: "https://youtu.be/x", ListID: l.ID})
	if err != nil {
		t.Fatalf("videoAdd: %v", err)
	}
	if err := tl.svc.DeleteVideo(ctx, added.Video.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if _, err := tl.listRemoveVideo(ctx, ListVideoInput{ListID: l.ID, VideoID: added.Video.ID}); err != nil {
		t.Fatalf("listRemoveVideo: %v", err)
	}
	got, _ := tl.svc.GetList(ctx, l.ID)
	if len(got.Videos) != 0 {
		t.Errorf("dangling id kept: %v", got.Videos)
	}
}

func TestVideoEmbed(t *testing.T) {
	p, err := videoEmbed(VideoEmbedInput{URL: "https://www.youtube.com/watch?v=abc123", Title: "abs"})
	if err != nil {
		t.Fatalf("videoEmbed: %v", err)
	}
	if p.Provider != embed.ProviderYouTube || p.EmbedURL != "https://www.youtube.com/embed/abc123" || p.Title != "abs" {
		t.Errorf("player = %+v", p)
	}

	p, _ = videoEmbed(VideoEmbedInput{URL: "https://vimeo.com/1"})
	if p.Provider != embed.ProviderNone || p.Placeholder == "" {
		t.Errorf("unsupported player = %+v", p)
	}
	if _, err := videoEmbed(VideoEmbedInput{URL: "  "}); err == nil {
		t.Error("expected error for blank url")
	}
}
