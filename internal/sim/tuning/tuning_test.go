package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_ShippedFileMatchesDefaults(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Defaults(), tu); diff != "" {
		t.Fatalf("configs/tuning.yaml drifted from Defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "tick_interval_ms: 50\ncooldowns:\n  say_ticks: 4\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickIntervalMs != 50 {
		t.Fatalf("TickIntervalMs=%d want=50", tu.TickIntervalMs)
	}
	if tu.Cooldowns.SayTicks != 4 {
		t.Fatalf("SayTicks=%d want=4", tu.Cooldowns.SayTicks)
	}
	if tu.Cooldowns.EatTicks != 9 {
		t.Fatalf("EatTicks=%d want=9 (default)", tu.Cooldowns.EatTicks)
	}
	if tu.EventQueueCap != 512 || tu.Memory.Cap != 300 || tu.Oracle.MaxRepairs != 3 {
		t.Fatalf("defaults lost: %+v", tu)
	}
	if tu.Duration("WORK") != 12 || tu.Duration("SLEEP") != 24 {
		t.Fatalf("durations: %+v", tu.Durations)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	_ = os.WriteFile(p, []byte("memory:\n  cap: 10\n  keep_recent: 20\n"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	tu, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err=%v want not-exist", err)
	}
	if tu.TicksPerDay != 288 {
		t.Fatalf("defaults should still be returned")
	}
}
