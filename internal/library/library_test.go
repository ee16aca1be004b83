package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidmark/internal/embed"
	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

var errInjected = errors.New("injected failure")

// faultyStore fails selected writes of the wrapped store.
type faultyStore struct {
	store.Store
	failUpdateList  bool
	failUpdateVideo int // fail the n-th UpdateVideo call (1-based); 0 = never
	failCommit      bool
	updateVideos    int
}

func (f *faultyStore) UpdateList(ctx context.Context, id string, p store.ListPatch) error {
	if f.failUpdateList {
		return errInjected
	}
	return f.Store.UpdateList(ctx, id, p)
}

func (f *faultyStore) UpdateVideo(ctx context.Context, id string, p store.VideoPatch) error {
	f.updateVideos++
	if f.failUpdateVideo > 0 && f.updateVideos >= f.failUpdateVideo {
		return errInjected
	}
	return f.Store.UpdateVideo(ctx, id, p)
}

func (f *faultyStore) Commit(ctx context.Context, b *store.Batch) error {
	if f.failCommit {
		return errInjected
	}
	return f.Store.Commit(ctx, b)
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "lib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestService(t *testing.T) (*Service, *faultyStore) {
	t.Helper()
	fs := &faultyStore{Store: newTestStore(t)}
	return New(fs, WithClock(func() time.Time { return fixedNow })), fs
}

func mustVideo(t *testing.T, svc *Service, user, url string) *store.Video {
	t.Helper()
	v, err := svc.CreateVideo(context.Background(), NewVideo{Title: "t " + url, URL: url, UserID: user})
	require.NoError(t, err)
	return v
}

func mustList(t *testing.T, svc *Service, user, name string) *store.List {
	t.Helper()
	l, err := svc.CreateList(context.Background(), user, name)
	require.NoError(t, err)
	return l
}

func TestCreateVideo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateVideo(ctx, NewVideo{Title: "  Leg day ", URL: "https://youtu.be/x", UserID: "u1", IsFavorite: true})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "Leg day", v.Title)
	assert.Equal(t, fixedNow, v.CreatedAt)

	got, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)

	_, err = svc.OwnedVideo(ctx, "u2", v.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateVideoValidation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name  string
		attrs NewVideo
	}{
		{"no title", NewVideo{URL: "u", UserID: "u1"}},
		{"blank url", NewVideo{Title: "t", URL: "  ", UserID: "u1"}},
		{"no user", NewVideo{Title: "t", URL: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateVideo(context.Background(), tt.attrs)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateVideoDoesNotTouchList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	l := mustList(t, svc, "u1", "L")

	v, err := svc.CreateVideo(ctx, NewVideo{Title: "t", URL: "u", UserID: "u1", ListID: l.ID})
	require.NoError(t, err)
	assert.Equal(t, l.ID, v.ListID)

	got, err := svc.GetList(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Videos)
}

func TestCreateList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateList(ctx, "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	l := mustList(t, svc, "u1", " Workouts ")
	assert.Equal(t, "Workouts", l.Name)
	assert.NotNil(t, l.Videos)
	assert.Empty(t, l.Videos)

	require.NoError(t, svc.RenameList(ctx, l.ID, "Gym"))
	got, err := svc.GetList(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gym", got.Name)

	assert.ErrorIs(t, svc.RenameList(ctx, l.ID, ""), ErrInvalidInput)
	assert.ErrorIs(t, svc.RenameList(ctx, "missing", "x"), store.ErrNotFound)

	lists, err := svc.GetUserLists(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestWorkoutsScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "Workouts")
	v, err := svc.AddVideo(ctx, NewVideo{Title: "abs", URL: "https://youtu.be/abc123", UserID: "u1"}, l.ID)
	require.NoError(t, err)

	videos, err := svc.GetListVideos(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, v.ID, videos[0].ID)
	assert.Equal(t, "https://www.youtube.com/embed/abc123", embed.Classify(videos[0].URL).EmbedURL())
}

func TestAddVideoToListIsAtomicAndDeduplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")

	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))

	got, err := svc.GetList(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{v.ID}, got.Videos)
	gotV, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, gotV.ListID)
}

func TestAddVideoToListFailureWritesNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	err := svc.AddVideoToList(ctx, "missing-list", v.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	gotV, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Empty(t, gotV.ListID)
}

func TestAddVideoToListMovesBetweenLists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a := mustList(t, svc, "u1", "A")
	b := mustList(t, svc, "u1", "B")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")

	require.NoError(t, svc.AddVideoToList(ctx, a.ID, v.ID))
	require.NoError(t, svc.AddVideoToList(ctx, b.ID, v.ID))

	gotA, _ := svc.GetList(ctx, a.ID)
	gotB, _ := svc.GetList(ctx, b.ID)
	assert.Empty(t, gotA.Videos)
	assert.Equal(t, []string{v.ID}, gotB.Videos)

	rep, err := svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rep.Clean(), "%+v", rep)
}

func TestAddVideoRollsBackOnFailedAppend(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	fs.failCommit = true

	_, err := svc.AddVideo(ctx, NewVideo{Title: "t", URL: "https://youtu.be/a", UserID: "u1"}, l.ID)
	require.ErrorIs(t, err, errInjected)
	assert.NotErrorIs(t, err, ErrPartialConsistency)

	videos, err := svc.GetUserVideos(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, videos, "created video should have been deleted")
}

func TestAddVideoWithoutList(t *testing.T) {
	svc, _ := newTestService(t)
	v, err := svc.AddVideo(context.Background(), NewVideo{Title: "t", URL: "u", UserID: "u1"}, "")
	require.NoError(t, err)
	assert.Empty(t, v.ListID)
}

func TestRemoveVideoFromList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))

	require.NoError(t, svc.RemoveVideoFromList(ctx, l.ID, v.ID))

	got, _ := svc.GetList(ctx, l.ID)
	gotV, _ := svc.OwnedVideo(ctx, "u1", v.ID)
	assert.NotContains(t, got.Videos, v.ID)
	assert.Empty(t, gotV.ListID)
}

func TestRemoveVideoFromListCompensates(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))

	fs.failUpdateList = true
	err := svc.RemoveVideoFromList(ctx, l.ID, v.ID)
	require.ErrorIs(t, err, errInjected)
	assert.NotErrorIs(t, err, ErrPartialConsistency)

	got, _ := svc.GetList(ctx, l.ID)
	gotV, _ := svc.OwnedVideo(ctx, "u1", v.ID)
	assert.Contains(t, got.Videos, v.ID)
	assert.Equal(t, l.ID, gotV.ListID, "compensation should restore listId")
}

// A failure between the two writes whose revert also fails leaves the list
// referencing a video that is already unlinked.
func TestRemoveVideoFromListGap(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))

	fs.failUpdateList = true
	fs.updateVideos = 0
	fs.failUpdateVideo = 2 // the unlink succeeds, the revert fails
	err := svc.RemoveVideoFromList(ctx, l.ID, v.ID)
	require.ErrorIs(t, err, ErrPartialConsistency)
	assert.ErrorIs(t, err, errInjected)

	fs.failUpdateList, fs.failUpdateVideo = false, 0
	got, err := svc.GetList(ctx, l.ID)
	require.NoError(t, err)
	gotV, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Videos, v.ID)
	assert.Empty(t, gotV.ListID)

	rep, err := svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rep.Mismatches, 1)
	assert.Equal(t, Mismatch{VideoID: v.ID, ListID: l.ID, InList: true}, rep.Mismatches[0])
}

func TestRemoveVideoFromListDropsDanglingID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	require.NoError(t, svc.DeleteVideo(ctx, v.ID))

	require.NoError(t, svc.RemoveVideoFromList(ctx, l.ID, v.ID))
	got, _ := svc.GetList(ctx, l.ID)
	assert.Empty(t, got.Videos)
}

func TestRemoveVideoFromOtherListKeepsLink(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	l1 := mustList(t, svc, "u1", "L1")
	l2 := mustList(t, svc, "u1", "L2")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l2.ID, v.ID))

	fs.updateVideos = 0
	require.NoError(t, svc.RemoveVideoFromList(ctx, l1.ID, v.ID))
	assert.Zero(t, fs.updateVideos, "video must not be written")

	gotV, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, l2.ID, gotV.ListID)
	got, _ := svc.GetList(ctx, l2.ID)
	assert.Contains(t, got.Videos, v.ID)

	rep, err := svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rep.Clean(), "report = %+v", rep)
}

func TestUnlinkableVideo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v := mustVideo(t, svc, "owner", "https://youtu.be/a")

	got, err := svc.UnlinkableVideo(ctx, "owner", v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = svc.UnlinkableVideo(ctx, "intruder", v.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.DeleteVideo(ctx, v.ID))
	got, err = svc.UnlinkableVideo(ctx, "intruder", v.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetListVideosSkipsDangling(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	a := mustVideo(t, svc, "u1", "https://youtu.be/a")
	b := mustVideo(t, svc, "u1", "https://youtu.be/b")
	c := mustVideo(t, svc, "u1", "https://youtu.be/c")
	for _, v := range []*store.Video{c, a, b} {
		require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	}
	require.NoError(t, svc.DeleteVideo(ctx, a.ID))

	videos, err := svc.GetListVideos(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, c.ID, videos[0].ID)
	assert.Equal(t, b.ID, videos[1].ID)

	none, err := svc.GetListVideos(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDeleteListLeavesDanglingReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))

	require.NoError(t, svc.DeleteList(ctx, l.ID))
	_, err := svc.GetList(ctx, l.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	gotV, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, gotV.ListID)

	rep, err := svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Ref{{VideoID: v.ID, ListID: l.ID}}, rep.DanglingListRefs)

	_, err = svc.Repair(ctx, "u1")
	require.NoError(t, err)
	gotV, _ = svc.OwnedVideo(ctx, "u1", v.ID)
	assert.Empty(t, gotV.ListID)

	rep, err = svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rep.Clean())
}

func TestDeleteVideoDoesNotTouchList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	require.NoError(t, svc.DeleteVideo(ctx, v.ID))

	got, _ := svc.GetList(ctx, l.ID)
	assert.Equal(t, []string{v.ID}, got.Videos)
}

func TestRemoveVideoUnlinksAtomically(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	keep := mustVideo(t, svc, "u1", "https://youtu.be/b")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, keep.ID))

	fs.failCommit = true
	require.ErrorIs(t, svc.RemoveVideo(ctx, v.ID), errInjected)
	_, err := svc.OwnedVideo(ctx, "u1", v.ID)
	require.NoError(t, err, "failed batch must not delete the video")

	fs.failCommit = false
	require.NoError(t, svc.RemoveVideo(ctx, v.ID))
	_, err = svc.OwnedVideo(ctx, "u1", v.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, _ := svc.GetList(ctx, l.ID)
	assert.Equal(t, []string{keep.ID}, got.Videos)

	assert.ErrorIs(t, svc.RemoveVideo(ctx, v.ID), store.ErrNotFound)
}

func TestRemoveVideoWithDeletedList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l := mustList(t, svc, "u1", "L")
	v := mustVideo(t, svc, "u1", "https://youtu.be/a")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, v.ID))
	require.NoError(t, svc.DeleteList(ctx, l.ID))

	require.NoError(t, svc.RemoveVideo(ctx, v.ID))
}

func TestFavorites(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a := mustVideo(t, svc, "u1", "https://youtu.be/a")
	mustVideo(t, svc, "u1", "https://youtu.be/b")
	mustVideo(t, svc, "u2", "https://youtu.be/c")

	require.NoError(t, svc.SetFavorite(ctx, a.ID, true))
	favs, err := svc.GetFavoriteVideos(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, a.ID, favs[0].ID)

	all, err := svc.GetUserVideos(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.GetUserVideos(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, svc.SetFavorite(ctx, "missing", true), store.ErrNotFound)
}

func TestListNames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a := mustList(t, svc, "u1", "A")
	b := mustList(t, svc, "u1", "B")
	v1 := mustVideo(t, svc, "u1", "https://youtu.be/1")
	v2 := mustVideo(t, svc, "u1", "https://youtu.be/2")
	v3 := mustVideo(t, svc, "u1", "https://youtu.be/3")
	require.NoError(t, svc.AddVideoToList(ctx, a.ID, v1.ID))
	require.NoError(t, svc.AddVideoToList(ctx, a.ID, v2.ID))
	require.NoError(t, svc.AddVideoToList(ctx, b.ID, v3.ID))
	require.NoError(t, svc.DeleteList(ctx, b.ID))

	videos, err := svc.GetUserVideos(ctx, "u1")
	require.NoError(t, err)
	names, err := svc.ListNames(ctx, videos)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{a.ID: "A"}, names)
}

func TestRepairDanglingVideoRefAndMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	st := svc.Store()

	l := mustList(t, svc, "u1", "L")
	gone := mustVideo(t, svc, "u1", "https://youtu.be/gone")
	orphan := mustVideo(t, svc, "u1", "https://youtu.be/orphan")
	require.NoError(t, svc.AddVideoToList(ctx, l.ID, gone.ID))
	require.NoError(t, svc.DeleteVideo(ctx, gone.ID))
	// orphan claims the list without being listed.
	require.NoError(t, st.UpdateVideo(ctx, orphan.ID, store.VideoPatch{ListID: &l.ID}))

	rep, err := svc.Repair(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []Ref{{VideoID: gone.ID, ListID: l.ID}}, rep.DanglingVideoRefs)
	assert.Equal(t, []Mismatch{{VideoID: orphan.ID, ListID: l.ID, VideoListID: l.ID}}, rep.Mismatches)

	got, _ := svc.GetList(ctx, l.ID)
	assert.Equal(t, []string{orphan.ID}, got.Videos)

	rep, err = svc.CheckIntegrity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rep.Clean(), "%+v", rep)
}

func TestMetricsCounted(t *testing.T) {
	svc, _ := newTestService(t)
	before := engine.GetMetrics()["lists_created"]
	mustList(t, svc, "u1", "L")
	assert.Equal(t, before+1, engine.GetMetrics()["lists_created"])
}
