package server

import (
	"testing"
	"time"
)

func TestIsDueDaily(t *testing.T) {
	if !isDue("@daily", nil) {
		t.Fatalf("expected first run to be due")
	}
	recent := time.Now().Add(-time.Hour)
	if isDue("@daily", &recent) {
		t.Fatalf("expected @daily not due after one hour")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Fatalf("expected @daily due after a day")
	}
}

func TestIsDueHourly(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatalf("expected @hourly not due after ten minutes")
	}
	old := time.Now().Add(-61 * time.Minute)
	if !isDue("@hourly", &old) {
		t.Fatalf("expected @hourly due after an hour")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	if !isDue("0 3 * * *", nil) {
		t.Fatalf("expected first cron run to be due")
	}
	old := time.Now().Add(-48 * time.Hour)
	if !isDue("0 3 * * *", &old) {
		t.Fatalf("expected cron due when next fire time already passed")
	}
	now := time.Now()
	if isDue("0 3 1 1 *", &now) {
		t.Fatalf("expected yearly cron not due right after a run")
	}
}

func TestIsDueInvalidSpecFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("not a cron", &recent) {
		t.Fatalf("expected invalid spec to behave like @daily")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("not a cron", &old) {
		t.Fatalf("expected invalid spec due after a day")
	}
}
