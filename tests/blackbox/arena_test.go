//go:build blackbox

package blackbox

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Both agents round-trip AAPL back to cash: a1 sells at 60, a2 collects the
// dividend and sells at 59.50, so each ends the scenario flat at $101,000.
// With both flat, a second run sizes the opening buys to the same 100-share
// fills and the duplicate window swallows them.
const scenarioYAML = `
name: three-day-demo
cycles:
  - at: 2025-06-02T14:00:00Z
    prices:
      AAPL: 50
    signals:
      - ticker: AAPL
        recommendation: strong_buy
        confidence: 80
        thesis_id: th-1
        debate: {winner: bull, margin: 25}
  - at: 2025-06-03T15:00:00Z
    prices:
      AAPL: 60
    signals:
      - agent: a1
        ticker: AAPL
        recommendation: strong_sell
        confidence: 70
        thesis_id: th-2
        debate: {winner: bear, margin: 20}
      - ticker: AAPL
        recommendation: buy
        confidence: 30
        thesis_id: th-3
    actions:
      - id: div-1
        ticker: AAPL
        kind: dividend
        amount: 0.5
  - at: 2025-06-04T16:00:00Z
    prices:
      AAPL: 59.5
    signals:
      - agent: a2
        ticker: AAPL
        recommendation: strong_sell
        confidence: 70
        thesis_id: th-4
        debate: {winner: bear, margin: 20}
`

func configYAML(dbPath string) string {
	return `
agents:
  - id: a1
    methodology: momentum
    initial_cash: 100000
  - id: a2
    methodology: value
    initial_cash: 100000
policy:
  min_trade_value: 500
  max_position_pct: 5.5
  max_deployed_pct: 80
  cash_reserve_pct: 10
  max_open_positions: 10
market:
  hours: always
  enforce_hours: false
journal:
  type: sqlite
  db_path: ` + dbPath + `
logging:
  level: error
  format: text
`
}

func queryInt(t *testing.T, dbPath, query string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "arena.yaml")

	out := run(t, "config", "init", "-o", cfgPath)
	if !contains(out, "Created default configuration") {
		t.Fatalf("unexpected init output:\n%s", out)
	}

	out = run(t, "config", "validate", "-f", cfgPath)
	if !contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}
}

func TestRunScenario_PersistsAndReplaysIdempotently(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "arena.db")
	cfgPath := writeFile(t, filepath.Join(dir, "arena.yaml"), configYAML(dbPath))
	scPath := writeFile(t, filepath.Join(dir, "demo.yaml"), scenarioYAML)

	out := run(t, "run", "-f", cfgPath, "-s", scPath)
	for _, want := range []string{
		"Seeded 2 fresh agents",
		"Scenario: three-day-demo (3 cycles, 2025-06-02 to 2025-06-04)",
		"Trades executed: 4",
		"Corporate actions: 1",
		"Standings:",
		"State saved to:",
	} {
		if !contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	if n := queryInt(t, dbPath, `SELECT COUNT(*) FROM portfolios`); n != 2 {
		t.Fatalf("expected 2 portfolios, got %d", n)
	}
	if n := queryInt(t, dbPath, `SELECT COUNT(*) FROM trades`); n != 4 {
		t.Fatalf("expected 4 trades, got %d", n)
	}
	if n := queryInt(t, dbPath, `SELECT COUNT(*) FROM snapshots`); n != 6 {
		t.Fatalf("expected 6 snapshots, got %d", n)
	}

	// same scenario against the same journal: the opening buys come back as
	// duplicates, the sells find no position and the dividend is recognized
	// as already applied, so nothing doubles
	out = run(t, "run", "-f", cfgPath, "-s", scPath)
	for _, want := range []string{"Restored 2 agents", "Trades executed: 0"} {
		if !contains(out, want) {
			t.Fatalf("missing %q in re-run output:\n%s", want, out)
		}
	}
	if n := queryInt(t, dbPath, `SELECT COUNT(*) FROM trades`); n != 4 {
		t.Fatalf("re-run changed trade count to %d", n)
	}
	if n := queryInt(t, dbPath, `SELECT COUNT(*) FROM corporate_actions`); n != 1 {
		t.Fatalf("re-run changed action count to %d", n)
	}
}

func TestReportExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "arena.db")
	cfgPath := writeFile(t, filepath.Join(dir, "arena.yaml"), configYAML(dbPath))
	scPath := writeFile(t, filepath.Join(dir, "demo.yaml"), scenarioYAML)

	run(t, "run", "-f", cfgPath, "-s", scPath)

	out := run(t, "report", "-f", cfgPath)
	// both agents finish at $101,000; the tie breaks by agent id
	if !contains(out, "Standings:") || !contains(out, "a2") {
		t.Fatalf("unexpected report output:\n%s", out)
	}

	out = run(t, "report", "-f", cfgPath, "-a", "a1")
	for _, want := range []string{"Agent: a1 (momentum, active)", "Total: $101000.00", "round trips closed"} {
		if !contains(out, want) {
			t.Fatalf("missing %q in agent report:\n%s", want, out)
		}
	}

	out = run(t, "agents", "-f", cfgPath)
	if !contains(out, "a1") || !contains(out, "a2") {
		t.Fatalf("unexpected agents output:\n%s", out)
	}

	exportPath := filepath.Join(dir, "export.json")
	out = run(t, "export", "-f", cfgPath, "-o", exportPath)
	if !contains(out, "Exported 2 agents") {
		t.Fatalf("unexpected export output:\n%s", out)
	}

	db2Path := filepath.Join(dir, "arena2.db")
	cfg2Path := writeFile(t, filepath.Join(dir, "arena2.yaml"), configYAML(db2Path))
	out = run(t, "import", "-f", cfg2Path, "-i", exportPath)
	if !contains(out, "Imported 2 agents") {
		t.Fatalf("unexpected import output:\n%s", out)
	}
	if n := queryInt(t, db2Path, `SELECT COUNT(*) FROM portfolios`); n != 2 {
		t.Fatalf("expected 2 imported portfolios, got %d", n)
	}

	// ARENA_DB points the default config at the imported journal
	out = runEnv(t, []string{"ARENA_DB=" + db2Path}, "agents")
	if !contains(out, "a1") || !contains(out, "a2") {
		t.Fatalf("env override did not reach the journal:\n%s", out)
	}
}
