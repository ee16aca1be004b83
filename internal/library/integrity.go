package library

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

// Ref is one side of a video/list relation.
type Ref struct {
	VideoID string `json:"videoId"`
	ListID  string `json:"listId"`
}

// Mismatch describes a video whose listId disagrees with list membership.
// ListID is the list involved; VideoListID is what the video itself says.
type Mismatch struct {
	VideoID     string `json:"videoId"`
	ListID      string `json:"listId"`
	VideoListID string `json:"videoListId"`
	InList      bool   `json:"inList"`
}

// Report is the result of CheckIntegrity.
type Report struct {
	// DanglingListRefs are videos whose listId points to a missing list.
	DanglingListRefs []Ref `json:"danglingListRefs"`
	// DanglingVideoRefs are list entries pointing to a missing video.
	DanglingVideoRefs []Ref      `json:"danglingVideoRefs"`
	Mismatches        []Mismatch `json:"mismatches"`
}

// Clean reports whether no drift was found.
func (r Report) Clean() bool {
	return len(r.DanglingListRefs) == 0 && len(r.DanglingVideoRefs) == 0 && len(r.Mismatches) == 0
}

// CheckIntegrity scans the videos and lists of userID and reports every
// relation whose two sides disagree.
func (s *Service) CheckIntegrity(ctx context.Context, userID string) (Report, error) {
	if blank(userID) {
		return Report{}, invalid("check integrity", "userId is required")
	}
	var rep Report
	err := s.track(ctx, "check integrity", func(ctx context.Context) error {
		var err error
		rep, err = s.scan(ctx, userID)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	if !rep.Clean() {
		engine.IncrDriftReports()
		slog.Info("integrity drift found",
			slog.String("user", userID),
			slog.Int("dangling_list_refs", len(rep.DanglingListRefs)),
			slog.Int("dangling_video_refs", len(rep.DanglingVideoRefs)),
			slog.Int("mismatches", len(rep.Mismatches)))
	}
	return rep, nil
}

func (s *Service) scan(ctx context.Context, userID string) (Report, error) {
	rep := Report{DanglingListRefs: []Ref{}, DanglingVideoRefs: []Ref{}, Mismatches: []Mismatch{}}

	videos, err := s.st.QueryVideos(ctx, store.VideoQuery{UserID: userID})
	if err != nil {
		return rep, err
	}
	lists, err := s.st.QueryLists(ctx, userID)
	if err != nil {
		return rep, err
	}

	listByID := make(map[string]store.List, len(lists))
	for _, l := range lists {
		listByID[l.ID] = l
	}
	videoByID := make(map[string]store.Video, len(videos))
	for _, v := range videos {
		videoByID[v.ID] = v
	}

	for _, v := range videos {
		if v.ListID == "" {
			continue
		}
		l, ok := listByID[v.ListID]
		if !ok {
			got, err := s.st.GetList(ctx, v.ListID)
			if errors.Is(err, store.ErrNotFound) {
				rep.DanglingListRefs = append(rep.DanglingListRefs, Ref{VideoID: v.ID, ListID: v.ListID})
				continue
			}
			if err != nil {
				return rep, err
			}
			l = *got
		}
		if !slices.Contains(l.Videos, v.ID) {
			rep.Mismatches = append(rep.Mismatches, Mismatch{VideoID: v.ID, ListID: l.ID, VideoListID: v.ListID})
		}
	}

	for _, l := range lists {
		var unknown []string
		for _, id := range l.Videos {
			v, ok := videoByID[id]
			if !ok {
				unknown = append(unknown, id)
				continue
			}
			if v.ListID != l.ID {
				rep.Mismatches = append(rep.Mismatches, Mismatch{VideoID: id, ListID: l.ID, VideoListID: v.ListID, InList: true})
			}
		}
		if len(unknown) == 0 {
			continue
		}
		// Ids not owned by userID may still exist under another owner.
		found, err := s.st.GetVideos(ctx, unknown)
		if err != nil {
			return rep, err
		}
		existing := make(map[string]store.Video, len(found))
		for _, v := range found {
			existing[v.ID] = v
		}
		for _, id := range unknown {
			v, ok := existing[id]
			if !ok {
				rep.DanglingVideoRefs = append(rep.DanglingVideoRefs, Ref{VideoID: id, ListID: l.ID})
				continue
			}
			if v.ListID != l.ID {
				rep.Mismatches = append(rep.Mismatches, Mismatch{VideoID: id, ListID: l.ID, VideoListID: v.ListID, InList: true})
			}
		}
	}
	return rep, nil
}

// Repair runs CheckIntegrity and fixes what it found in one batch, treating
// video.listId as authoritative: dangling entries are dropped from lists,
// dangling listIds are cleared, lists missing a video that points at them get
// it appended and lists holding a video that points elsewhere lose it.
// The returned report describes the state before the repair.
func (s *Service) Repair(ctx context.Context, userID string) (Report, error) {
	rep, err := s.CheckIntegrity(ctx, userID)
	if err != nil || rep.Clean() {
		return rep, err
	}

	patches := make(map[string]*store.ListPatch)
	var order []string
	patch := func(listID string) *store.ListPatch {
		p, ok := patches[listID]
		if !ok {
			p = &store.ListPatch{}
			patches[listID] = p
			order = append(order, listID)
		}
		return p
	}

	b := store.NewBatch()
	for _, r := range rep.DanglingVideoRefs {
		p := patch(r.ListID)
		p.RemoveVideos = append(p.RemoveVideos, r.VideoID)
	}
	for _, m := range rep.Mismatches {
		p := patch(m.ListID)
		if m.InList {
			p.RemoveVideos = append(p.RemoveVideos, m.VideoID)
		} else {
			p.AddVideos = append(p.AddVideos, m.VideoID)
		}
	}
	for _, id := range order {
		b.UpdateList(id, *patches[id])
	}
	for _, r := range rep.DanglingListRefs {
		b.UpdateVideo(r.VideoID, store.VideoPatch{ListID: store.Ptr("")})
	}

	err = s.track(ctx, "repair", func(ctx context.Context) error {
		if err := s.st.Commit(ctx, b); err != nil {
			return err
		}
		engine.IncrBatchCommits()
		return nil
	})
	if err != nil {
		return rep, err
	}
	slog.Info("integrity repaired", slog.String("user", userID), slog.Int("writes", b.Len()))
	return rep, nil
}
