package log

import (
	"errors"
	"io"
	"testing"
	"time"

	"llmsim.ai/internal/sim/world"
)

func TestTickLogger_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		if i == 3 {
			clock = clock.Add(2 * time.Minute)
		}
		e := world.TickLogEntry{WorldID: "w", Tick: i, Digest: "d", Actions: []world.RecordedAction{{AgentID: "ada", Verb: "SAY"}}}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(TickDir(dir))
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}

	var ticks []int
	err = ReadTicks(TickDir(dir), func(e world.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		if e.Actions[0].AgentID != "ada" {
			t.Fatalf("entry=%+v", e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ticks) != 5 || ticks[0] != 0 || ticks[4] != 4 {
		t.Fatalf("ticks=%v", ticks)
	}

	n := 0
	err = ReadTicks(TickDir(dir), func(world.TickLogEntry) error {
		n++
		if n == 2 {
			return io.EOF
		}
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("early stop n=%d err=%v", n, err)
	}
}

func TestTickLogger_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for run := 0; run < 2; run++ {
		l := NewTickLogger(dir)
		l.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
		if err := l.WriteTick(world.TickLogEntry{Tick: run}); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = l.Close()
	}
	n := 0
	if err := ReadTicks(TickDir(dir), func(world.TickLogEntry) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("entries=%d want 2", n)
	}
}

type failing struct{}

func (failing) WriteTick(world.TickLogEntry) error { return errors.New("disk full") }

type counting struct{ n int }

func (c *counting) WriteTick(world.TickLogEntry) error { c.n++; return nil }

func TestTee_WritesAllAndJoinsErrors(t *testing.T) {
	c := &counting{}
	err := Tee{failing{}, nil, c}.WriteTick(world.TickLogEntry{})
	if err == nil || c.n != 1 {
		t.Fatalf("err=%v n=%d", err, c.n)
	}
}
