package catalog_test

import (
	"context"
	"errors"
	"testing"

	"clipforge/internal/attachments"
	"clipforge/internal/catalog"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
	"clipforge/internal/transcript"
)

type fixture struct {
	cat   *catalog.Store
	blobs *attachments.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return fixture{
		cat:   catalog.NewStore(testsupport.MustOpenDB(t, cfg)),
		blobs: testsupport.MustAttachmentStore(t, cfg),
	}
}

func TestCreateAndGetRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Speedrun Night", 1024, 0)
	if rec.VideoVersion != 1 || rec.Video.Size != 1024 || rec.Title != "Speedrun Night" {
		t.Fatalf("unexpected recording: %#v", rec)
	}

	if err := f.cat.SetRecordingDuration(ctx, rec.ID, 3600.5); err != nil {
		t.Fatalf("SetRecordingDuration: %v", err)
	}
	got, err := f.cat.GetRecording(ctx, rec.ID)
	if err != nil || got.DurationSeconds != 3600.5 {
		t.Fatalf("unexpected recording %#v (err=%v)", got, err)
	}

	if _, err := f.cat.GetRecording(ctx, 999); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.cat.SetRecordingDuration(ctx, 999, 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := f.cat.ListRecordings(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one recording, got %d (err=%v)", len(list), err)
	}
}

func TestCreateRecordingRequiresTitleAndVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cat.CreateRecording(ctx, catalog.NewRecording{Title: " ", Video: attachments.Blob{Key: "k"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = f.cat.CreateRecording(ctx, catalog.NewRecording{Title: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReplaceRecordingVideoChecksVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Demo", 10, 60)

	replacement := attachments.Blob{Key: "new-key", Filename: "subtitled_demo_1.mp4", ContentType: "video/mp4", Size: 20}
	previous, err := f.cat.ReplaceRecordingVideo(ctx, rec.ID, rec.VideoVersion, replacement)
	if err != nil {
		t.Fatalf("ReplaceRecordingVideo: %v", err)
	}
	if previous.Key != rec.Video.Key {
		t.Fatalf("expected previous blob %q, got %#v", rec.Video.Key, previous)
	}

	updated, _ := f.cat.GetRecording(ctx, rec.ID)
	if updated.Video != replacement || updated.VideoVersion != rec.VideoVersion+1 {
		t.Fatalf("swap not applied: %#v", updated)
	}

	stale := attachments.Blob{Key: "stale-key", Filename: "x.mp4", ContentType: "video/mp4", Size: 1}
	_, conflictErr := f.cat.ReplaceRecordingVideo(ctx, rec.ID, rec.VideoVersion, stale)
	if !errors.Is(conflictErr, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", conflictErr)
	}
	unchanged, _ := f.cat.GetRecording(ctx, rec.ID)
	if unchanged.Video.Key != "new-key" {
		t.Fatalf("stale swap modified the row: %#v", unchanged)
	}
	if !services.Retryable(conflictErr) {
		t.Fatal("expected version conflicts to be retryable")
	}
}

func TestReplaceTranscriptReplacesSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Demo", 10, 60)

	first := transcript.Payload{
		Schema: transcript.SchemaSegments,
		Raw:    []byte(`{"segments":[]}`),
		Segments: []transcript.Segment{
			{Start: 0, End: 1, Text: "one"},
			{Start: 1, End: 2, Text: "two"},
			{Start: 2, End: 3, Text: "three"},
		},
	}
	tr, err := f.cat.ReplaceTranscript(ctx, rec.ID, first)
	if err != nil {
		t.Fatalf("ReplaceTranscript: %v", err)
	}
	if len(tr.Segments) != 3 || tr.Schema != transcript.SchemaSegments {
		t.Fatalf("unexpected transcript %#v", tr)
	}

	second := transcript.Payload{
		Schema:   transcript.SchemaUtterances,
		Raw:      []byte(`[]`),
		Segments: []transcript.Segment{{Start: 5, End: 6, Text: "only"}},
	}
	again, err := f.cat.ReplaceTranscript(ctx, rec.ID, second)
	if err != nil {
		t.Fatalf("second ReplaceTranscript: %v", err)
	}
	if again.ID != tr.ID {
		t.Fatalf("expected transcript row reused, got %d vs %d", again.ID, tr.ID)
	}
	if len(again.Segments) != 1 || again.Segments[0].Text != "only" || string(again.Data) != "[]" {
		t.Fatalf("segments not replaced: %#v", again)
	}

	if _, err := f.cat.ReplaceTranscript(ctx, 999, second); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing recording, got %v", err)
	}
}

func TestTranscriptForRecordingMissing(t *testing.T) {
	f := newFixture(t)
	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Demo", 10, 60)
	if _, err := f.cat.TranscriptForRecording(context.Background(), rec.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveClipCreatesThenReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Demo", 10, 600)

	req, err := f.cat.CreateClipRequest(ctx, catalog.NewClipRequest{RecordingID: rec.ID, Title: "Boss fight", StartTime: 10, EndTime: 40})
	if err != nil {
		t.Fatalf("CreateClipRequest: %v", err)
	}
	if req.Status != catalog.ClipRequestPending || req.ClipID != 0 || req.Duration() != 30 {
		t.Fatalf("unexpected request %#v", req)
	}

	blob := attachments.Blob{Key: "clip-1", Filename: "clip.mp4", ContentType: "video/mp4", Size: 5}
	clip, replaced, err := f.cat.SaveClip(ctx, req.ID, blob)
	if err != nil {
		t.Fatalf("SaveClip: %v", err)
	}
	if !replaced.IsZero() || clip.Video.Key != "clip-1" || clip.StartTime != 10 {
		t.Fatalf("unexpected clip %#v replaced=%#v", clip, replaced)
	}
	done, _ := f.cat.GetClipRequest(ctx, req.ID)
	if done.Status != catalog.ClipRequestDone || done.ClipID != clip.ID {
		t.Fatalf("request not completed: %#v", done)
	}

	edit, _ := f.cat.CreateClipRequest(ctx, catalog.NewClipRequest{RecordingID: rec.ID, ClipID: clip.ID, Title: "Boss fight (tight)", StartTime: 12, EndTime: 30})
	updated, replaced, err := f.cat.SaveClip(ctx, edit.ID, attachments.Blob{Key: "clip-2", Filename: "clip.mp4", ContentType: "video/mp4", Size: 6})
	if err != nil {
		t.Fatalf("SaveClip update: %v", err)
	}
	if updated.ID != clip.ID || updated.Title != "Boss fight (tight)" || replaced.Key != "clip-1" {
		t.Fatalf("unexpected update %#v replaced=%#v", updated, replaced)
	}

	clips, err := f.cat.ListClips(ctx, rec.ID)
	if err != nil || len(clips) != 1 {
		t.Fatalf("expected one clip, got %d (err=%v)", len(clips), err)
	}
}

func TestFailClipRequestLeavesNoClip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewRecording(t, f.cat, f.blobs, "Demo", 10, 600)

	req, _ := f.cat.CreateClipRequest(ctx, catalog.NewClipRequest{RecordingID: rec.ID, Title: "x", StartTime: 0, EndTime: 5})
	if err := f.cat.FailClipRequest(ctx, req.ID, "ffmpeg exited 1"); err != nil {
		t.Fatalf("FailClipRequest: %v", err)
	}
	failed, _ := f.cat.GetClipRequest(ctx, req.ID)
	if failed.Status != catalog.ClipRequestFailed || failed.ErrorMessage != "ffmpeg exited 1" {
		t.Fatalf("unexpected request %#v", failed)
	}
	clips, _ := f.cat.ListClips(ctx, 0)
	if len(clips) != 0 {
		t.Fatalf("expected no clips, got %d", len(clips))
	}
}
