package jobstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/dbopen"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
)

func openStore(t *testing.T) *jobstore.Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(jobstore.Schema))
	return jobstore.NewStore(db)
}

func newJob(id, owner string) *jobstore.Job {
	return &jobstore.Job{
		ID:        id,
		OwnerID:   owner,
		Filename:  "report.txt",
		Format:    "txt",
		SizeBytes: 42,
		BlobKey:   "blob_" + id,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}

	j, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if j == nil {
		t.Fatal("expected a job")
	}
	if j.Status != jobstore.StatusReceived {
		t.Fatalf("got status %q, want received", j.Status)
	}
	if j.Attempts != 1 {
		t.Fatalf("got attempts %d, want 1", j.Attempts)
	}
	if j.BlobKey != "blob_j1" {
		t.Fatalf("got blob key %q, want blob_j1", j.BlobKey)
	}
	if j.CreatedAt == 0 || j.UpdatedAt == 0 {
		t.Fatal("timestamps not set")
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	j, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if j != nil {
		t.Fatal("expected nil for a missing job")
	}
}

func TestClaimWinsOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Claim(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	ok, err = s.Claim(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second claim should be a no-op")
	}
}

func TestClaimConcurrent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "j1")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("got %d claim winners, want exactly 1", got)
	}
}

func TestListReceivedOldestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j := newJob(fmt.Sprintf("j%d", i), "alice")
		if err := s.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
		// Force distinct created_at values.
		if _, err := s.DB.Exec(`UPDATE jobs SET created_at = ? WHERE id = ?`,
			int64(1000+i), j.ID); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.ListReceived(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d jobs, want 2", len(batch))
	}
	if batch[0].ID != "j0" || batch[1].ID != "j1" {
		t.Fatalf("got order %s, %s; want j0, j1", batch[0].ID, batch[1].ID)
	}
}

func TestLifecycleToCompleted(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetExtracted(ctx, "j1", "hello world", 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, "j1", []byte(`{"documentType":"report"}`)); err != nil {
		t.Fatal(err)
	}

	j, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != jobstore.StatusCompleted {
		t.Fatalf("got status %q, want completed", j.Status)
	}
	if j.ExtractedText != "hello world" {
		t.Fatalf("got text %q", j.ExtractedText)
	}
	if j.ResultJSON == "" {
		t.Fatal("result not persisted")
	}
	if !j.Terminal() {
		t.Fatal("completed should be terminal")
	}
}

func TestFailKeepsExtractedText(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetExtracted(ctx, "j1", "partial text", 0, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Fail(ctx, "j1", jobstore.FailAnalysis, "provider down"); err != nil {
		t.Fatal(err)
	}

	j, _ := s.Get(ctx, "j1")
	if j.Status != jobstore.StatusFailed {
		t.Fatalf("got status %q, want failed", j.Status)
	}
	if j.FailureCode != jobstore.FailAnalysis {
		t.Fatalf("got failure code %q", j.FailureCode)
	}
	if j.FailureMessage == "" {
		t.Fatal("failure message missing")
	}
	if j.ExtractedText != "partial text" {
		t.Fatalf("extracted text lost on failure: %q", j.ExtractedText)
	}
}

func TestTerminalStatesAreGuarded(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, "j1", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	// No status-guarded write may touch a completed job.
	if err := s.Fail(ctx, "j1", jobstore.FailAnalysis, "late failure"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("Fail on completed job: got %v, want ErrNotFound", err)
	}
	if err := s.SetExtracted(ctx, "j1", "late text", 0, 0); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("SetExtracted on completed job: got %v, want ErrNotFound", err)
	}
	if err := s.Complete(ctx, "j1", []byte(`{}`)); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("double Complete: got %v, want ErrNotFound", err)
	}

	j, _ := s.Get(ctx, "j1")
	if j.Status != jobstore.StatusCompleted {
		t.Fatalf("status moved after terminal: %q", j.Status)
	}
}

func TestResubmit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetExtracted(ctx, "j1", "stale", 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Fail(ctx, "j1", jobstore.FailExtraction, "bad file"); err != nil {
		t.Fatal(err)
	}

	if err := s.Resubmit(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	j, _ := s.Get(ctx, "j1")
	if j.Status != jobstore.StatusReceived {
		t.Fatalf("got status %q, want received", j.Status)
	}
	if j.Attempts != 2 {
		t.Fatalf("got attempts %d, want 2", j.Attempts)
	}
	if j.FailureCode != "" || j.FailureMessage != "" {
		t.Fatal("failure detail not cleared")
	}
	if j.ExtractedText != "" {
		t.Fatal("stale extracted text not cleared")
	}
}

func TestResubmitErrors(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Resubmit(ctx, "missing"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if err := s.Resubmit(ctx, "j1"); !errors.Is(err, jobstore.ErrNotFailed) {
		t.Fatalf("got %v, want ErrNotFailed", err)
	}
}

func TestListByOwnerNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j := newJob(fmt.Sprintf("j%d", i), "alice")
		if err := s.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
		if _, err := s.DB.Exec(`UPDATE jobs SET created_at = ? WHERE id = ?`,
			int64(1000+i), j.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Create(ctx, newJob("other", "bob")); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListByOwner(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	if jobs[0].ID != "j2" {
		t.Fatalf("got first %s, want j2 (newest)", jobs[0].ID)
	}
}

func TestListStale(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newJob("j1", "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	// Fresh processing job is not stale.
	stale, err := s.ListStale(ctx, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Fatalf("got %d stale jobs, want 0", len(stale))
	}

	// Age the row past the threshold.
	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	if _, err := s.DB.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`, old, "j1"); err != nil {
		t.Fatal(err)
	}

	stale, err = s.ListStale(ctx, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != "j1" {
		t.Fatalf("stale query missed the aged job: %v", stale)
	}
}

func TestCountByStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Create(ctx, newJob(fmt.Sprintf("j%d", i), "alice")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Claim(ctx, "j0"); err != nil {
		t.Fatal(err)
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[jobstore.StatusReceived] != 2 {
		t.Fatalf("got %d received, want 2", counts[jobstore.StatusReceived])
	}
	if counts[jobstore.StatusProcessing] != 1 {
		t.Fatalf("got %d processing, want 1", counts[jobstore.StatusProcessing])
	}
}
