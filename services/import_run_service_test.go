package services

import (
	"database/sql/driver"
	"errors"
	"regexp"
	"sync"
	"testing"

	"job-feed-api/models"
)

func TestStartCreatesProcessingRun(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO .import_runs."),
			result:  scriptedResult{rowsAffected: 1},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewImportRunService(db)
	run, err := service.Start("https://example.com/feed")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if run.ID == "" {
		t.Error("expected a generated run ID")
	}
	if run.Status != models.ImportRunStatusProcessing {
		t.Errorf("expected processing status, got %q", run.Status)
	}
	if run.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestIncrementCountersSingleUpdate(t *testing.T) {
	steps := []*queryStep{
		{
			kind: kindExec,
			// the deltas must be applied inside the database, never read-modify-write
			pattern: regexp.MustCompile("UPDATE .import_runs. SET .*new_jobs.=new_jobs \\+ \\?.*WHERE id = \\?"),
			result:  scriptedResult{rowsAffected: 1},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewImportRunService(db)
	if err := service.IncrementCounters("run-1", 5, 3, 1); err != nil {
		t.Fatalf("IncrementCounters returned error: %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestIncrementCountersSkipsZeroDeltas(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	service := NewImportRunService(db)
	if err := service.IncrementCounters("run-1", 0, 0, 0); err != nil {
		t.Fatalf("all-zero deltas should be a no-op, got %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestSetTotalFetchedMissingRun(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE .import_runs. SET .total_fetched.=\\?"),
			result:  scriptedResult{rowsAffected: 0},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewImportRunService(db)
	if err := service.SetTotalFetched("missing", 10); !errors.Is(err, ErrImportRunNotFound) {
		t.Fatalf("expected ErrImportRunNotFound, got %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

// TestMarkCompletedSingleWinner exercises the compare-and-set transition:
// when several workers try to complete the same run, exactly one observes
// an affected row.
func TestMarkCompletedSingleWinner(t *testing.T) {
	const workers = 8

	steps := make([]*queryStep, 0, workers)
	for i := 0; i < workers; i++ {
		affected := int64(0)
		if i == 0 {
			affected = 1
		}
		steps = append(steps, &queryStep{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE .import_runs. SET .*WHERE id = \\? AND status = \\?"),
			result:  scriptedResult{rowsAffected: affected},
		})
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewImportRunService(db)

	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := service.MarkCompleted("run-1")
			if err != nil {
				t.Errorf("MarkCompleted returned error: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestAppendErrorsSetsRunID(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO .import_run_errors."),
			result:  scriptedResult{rowsAffected: 2},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	service := NewImportRunService(db)
	errs := []models.ImportRunError{
		{Reason: "bad record", ErrorType: models.ImportErrorTypeValidation},
		{Reason: "worse record", ErrorType: models.ImportErrorTypeDatabase},
	}
	if err := service.AppendErrors("run-1", errs); err != nil {
		t.Fatalf("AppendErrors returned error: %v", err)
	}
	for i := range errs {
		if errs[i].ImportRunID != "run-1" {
			t.Errorf("error %d missing run id: %+v", i, errs[i])
		}
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}

	// an empty list must not touch the database
	db2, state2, cleanup2 := newScriptedGormDB(t, nil)
	defer cleanup2()
	if err := NewImportRunService(db2).AppendErrors("run-1", nil); err != nil {
		t.Fatalf("empty AppendErrors should be a no-op, got %v", err)
	}
	if err := state2.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestGetByID(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM .import_runs. WHERE id = \\?"),
			columns: []string{"id", "feed_url", "status", "total_fetched", "new_jobs", "updated_jobs", "failed_jobs"},
			rows: [][]driver.Value{
				{"run-1", "https://example.com/feed", "completed", int64(10), int64(7), int64(2), int64(1)},
			},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM .import_run_errors."),
			columns: []string{"id", "import_run_id", "external_id", "reason", "error_type"},
			rows: [][]driver.Value{
				{int64(1), "run-1", "job-9", "title is required", "validation"},
			},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	run, err := NewImportRunService(db).GetByID("run-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if run.Status != models.ImportRunStatusCompleted || run.TotalFetched != 10 {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.Processed() != 10 {
		t.Errorf("expected Processed()=10, got %d", run.Processed())
	}
	if len(run.Errors) != 1 || run.Errors[0].ExternalID != "job-9" {
		t.Errorf("unexpected errors: %+v", run.Errors)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM .import_runs. WHERE id = \\?"),
			columns: []string{"id"},
		},
	}
	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	if _, err := NewImportRunService(db).GetByID("missing"); !errors.Is(err, ErrImportRunNotFound) {
		t.Fatalf("expected ErrImportRunNotFound, got %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}
