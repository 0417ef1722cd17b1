package jobs

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-quotes/models"
)

func TestMergeStatusPrefixMatch(t *testing.T) {
	tr := NewTracker(15)
	if err := tr.Track("7071t00000ABCDE", "AAPL"); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := tr.Track("7071t00000FGHIJ", "MSFT"); err != nil {
		t.Fatalf("track: %v", err)
	}

	views := tr.MergeStatus([]models.PolledJob{
		{ID: "7071t00000ABCDEQAT", Status: models.JobCompleted},
		{ID: "7071t00000FGHIJXYZ", Status: models.JobFailed, ExtendedStatus: "First error: timeout"},
	})

	want := []models.JobView{
		{Ticker: "AAPL", Status: models.JobCompleted},
		{Ticker: "MSFT", Status: models.JobFailed, ExtendedStatus: "First error: timeout"},
	}
	if len(views) != len(want) {
		t.Fatalf("views=%v, want %v", views, want)
	}
	for i := range want {
		if views[i] != want[i] {
			t.Fatalf("views[%d]=%+v, want %+v", i, views[i], want[i])
		}
	}
}

func TestMergeStatusExactMatch(t *testing.T) {
	tr := NewTracker(0)
	if err := tr.Track("job-1", "AAPL"); err != nil {
		t.Fatalf("track: %v", err)
	}

	views := tr.MergeStatus([]models.PolledJob{
		{ID: "job-1", Status: models.JobProcessing},
		{ID: "job-1-extra", Status: models.JobCompleted},
	})
	if len(views) != 1 || views[0].Ticker != "AAPL" || views[0].Status != models.JobProcessing {
		t.Fatalf("views=%v, want only the exact match", views)
	}
}

func TestMergeStatusDropsUnknownJobs(t *testing.T) {
	tr := NewTracker(15)
	if err := tr.Track("7071t00000ABCDE", "AAPL"); err != nil {
		t.Fatalf("track: %v", err)
	}

	views := tr.MergeStatus([]models.PolledJob{{ID: "7071t00000ZZZZZQAT", Status: models.JobCompleted}})
	if len(views) != 0 {
		t.Fatalf("views=%v, want none", views)
	}
}

func TestForget(t *testing.T) {
	tr := NewTracker(15)
	for id, ticker := range map[string]string{"7071t00000ABCDE": "AAPL", "7071t00000FGHIJ": "MSFT"} {
		if err := tr.Track(id, ticker); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	tr.Forget("7071t00000ABCDEQAT", "never-tracked")

	if got := tr.IDs(); len(got) != 1 || got[0] != "7071t00000FGHIJ" {
		t.Fatalf("ids=%v, want only MSFT's job", got)
	}
	if _, ok := tr.Ticker("7071t00000ABCDE"); ok {
		t.Fatalf("forgotten job still resolves")
	}
	views := tr.MergeStatus([]models.PolledJob{
		{ID: "7071t00000ABCDEQAT", Status: models.JobCompleted},
		{ID: "7071t00000FGHIJQAT", Status: models.JobCompleted},
	})
	if len(views) != 1 || views[0].Ticker != "MSFT" {
		t.Fatalf("views=%v, want only MSFT", views)
	}
	if err := tr.Track("7071t00000ABCDE", "AAPL"); err != nil {
		t.Fatalf("re-track after forget: %v", err)
	}
}

func TestTrackRejectsDuplicatesAndEmpty(t *testing.T) {
	tr := NewTracker(0)
	if err := tr.Track("", "AAPL"); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := tr.Track("job-1", "AAPL"); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := tr.Track("job-1", "MSFT"); !errors.Is(err, ErrAlreadyTracked) {
		t.Fatalf("error=%v, want ErrAlreadyTracked", err)
	}
	if ticker, ok := tr.Ticker("job-1"); !ok || ticker != "AAPL" {
		t.Fatalf("ticker=%q/%v, want AAPL", ticker, ok)
	}
	if ids := tr.IDs(); len(ids) != 1 || ids[0] != "job-1" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestTrackerConcurrentTrackAndMerge(t *testing.T) {
	tr := NewTracker(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := tr.Track(fmt.Sprintf("job-%d", i), fmt.Sprintf("T%d", i)); err != nil {
				t.Errorf("track: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			tr.MergeStatus([]models.PolledJob{{ID: fmt.Sprintf("job-%d", i), Status: models.JobQueued}})
		}(i)
	}
	wg.Wait()

	if tr.Len() != 50 {
		t.Fatalf("tracked=%d, want 50", tr.Len())
	}
}
