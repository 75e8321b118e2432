package logging

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/signalenv/internal/engine"
	"github.com/danielpatrickdp/signalenv/internal/update"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE posterior_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		step        INTEGER NOT NULL,
		variable    TEXT NOT NULL,
		family      TEXT NOT NULL,
		params_json TEXT NOT NULL,
		free_energy REAL,
		created_at  TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func normal(name string, mean, variance float64) update.Posterior {
	return update.Posterior{
		Variable: name,
		Family:   update.FamilyNormal,
		Params:   map[string]float64{"mean": mean, "var": variance},
	}
}

// #endregion helpers

// #region log-posterior-tests
func TestLogPosterior_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	fe := -3.5
	err := LogPosterior(db, PosteriorEntry{
		RunID:      "r1",
		Step:       4,
		Posterior:  normal("x", 1.25, 0.5),
		FreeEnergy: &fe,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var variable, family, params string
	var step int
	var gotFE sql.NullFloat64
	db.QueryRow("SELECT step, variable, family, params_json, free_energy FROM posterior_log").
		Scan(&step, &variable, &family, &params, &gotFE)
	if step != 4 || variable != "x" || family != "normal" {
		t.Errorf("unexpected row: step=%d variable=%q family=%q", step, variable, family)
	}
	if params != `{"mean":1.25,"var":0.5}` {
		t.Errorf("params_json = %s", params)
	}
	if !gotFE.Valid || gotFE.Float64 != -3.5 {
		t.Errorf("free_energy = %+v, want -3.5", gotFE)
	}
}

func TestLogPosterior_NullFreeEnergyAndDefaultTime(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogPosterior(db, PosteriorEntry{RunID: "r1", Step: 1, Posterior: normal("x", 0, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var fe sql.NullFloat64
	var createdAtStr string
	db.QueryRow("SELECT free_energy, created_at FROM posterior_log").Scan(&fe, &createdAtStr)
	if fe.Valid {
		t.Error("expected NULL free_energy")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogPosterior_Error(t *testing.T) {
	db := setupDB(t)
	db.Close()

	if err := LogPosterior(db, PosteriorEntry{RunID: "r1", Posterior: normal("x", 0, 1)}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestLogUpdate_WritesSortedRows(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	u := engine.Update{
		Index: 2,
		Posteriors: map[string]engine.Posterior{
			"x":   normal("x", 1, 1),
			"tau": {Family: update.FamilyGamma, Params: map[string]float64{"shape": 2, "rate": 3}},
		},
	}
	if err := LogUpdate(db, "r1", 3, u); err != nil {
		t.Fatalf("LogUpdate: %v", err)
	}

	rows, err := db.Query("SELECT variable, step FROM posterior_log ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		var step int
		rows.Scan(&name, &step)
		if step != 3 {
			t.Errorf("step = %d, want 3", step)
		}
		names = append(names, name)
	}
	if strings.Join(names, ",") != "tau,x" {
		t.Errorf("variables = %v, want [tau x]", names)
	}
}

// #endregion log-posterior-tests

// #region logger-tests
func TestParseLevel(t *testing.T) {
	cases := map[string]bool{"": true, "info": true, "DEBUG": true, "warn": true, "error": true, "loud": false}
	for name, ok := range cases {
		_, err := ParseLevel(name)
		if (err == nil) != ok {
			t.Errorf("ParseLevel(%q) err = %v", name, err)
		}
	}
}

func TestNewLogger_FansOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "signalenv.log")

	logger, closeFn, err := NewLogger(&buf, Options{Level: "info", Format: "text", FilePath: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("sample", "step", 1)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(buf.String(), "msg=sample") {
		t.Errorf("text output missing record: %q", buf.String())
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"sample"`) {
		t.Errorf("file output missing JSON record: %q", data)
	}
}

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	if _, _, err := NewLogger(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

// #endregion logger-tests
