package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	persistlog "llmsim.ai/internal/persistence/log"
	"llmsim.ai/internal/persistence/snapshot"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/world"
)

func main() {
	var (
		worldDir  = flag.String("world_dir", "", "world data dir (<data>/worlds/<id>); sets -ticks and -snapshot defaults")
		ticksDir  = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst")
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (optional)")
		itemsPath = flag.String("items", "", "items.json used by the run (default: built-in catalog)")
		fromTick  = flag.Int("from_tick", 0, "first tick to summarize (inclusive)")
		toTick    = flag.Int("to_tick", -1, "last tick to summarize (inclusive, -1: all)")
	)
	flag.Parse()

	if *worldDir != "" {
		if *ticksDir == "" {
			*ticksDir = persistlog.TickDir(*worldDir)
		}
		if *snapPath == "" {
			*snapPath = latestSnapshot(*worldDir)
		}
	}
	if *ticksDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -world_dir, -ticks or -snapshot")
		os.Exit(2)
	}

	var sum *summary
	if *ticksDir != "" {
		s, err := summarize(*ticksDir, *fromTick, *toTick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ticks:", err)
			os.Exit(1)
		}
		s.print(os.Stdout)
		sum = s
	}

	if *snapPath != "" {
		items := catalogs.Default()
		if *itemsPath != "" {
			c, err := catalogs.Load(*itemsPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "load items:", err)
				os.Exit(1)
			}
			items = c
		}
		if err := checkSnapshot(os.Stdout, *snapPath, items, sum); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}
}

// checkSnapshot restores the snapshot (which verifies its digest) and, when
// the tick log covers it, matches it against the logged digest.
func checkSnapshot(out io.Writer, path string, items *catalogs.ItemCatalog, sum *summary) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	w, err := world.ImportSnapshot(world.Config{}, items, snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "snapshot v%d world=%s run=%s tick=%d seed=%d places=%d agents=%d alive=%d events=%d digest=%s\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.RunID, snap.Header.Tick, snap.Seed,
		len(snap.Places), len(snap.Agents), w.AliveCount(), len(snap.Events), short(snap.Digest))
	if sum == nil {
		return nil
	}
	r, ok := sum.runs[snap.Header.RunID]
	if !ok {
		return nil
	}
	// Entry n carries the digest after tick n, i.e. the state at tick n+1.
	d, ok := r.digests[snap.Header.Tick-1]
	if !ok {
		return nil
	}
	if d != snap.Digest {
		return fmt.Errorf("digest mismatch at tick %d: log=%s snapshot=%s", snap.Header.Tick, short(d), short(snap.Digest))
	}
	fmt.Fprintf(out, "snapshot matches tick log at tick %d\n", snap.Header.Tick)
	return nil
}

func latestSnapshot(worldDir string) string {
	matches, _ := filepath.Glob(filepath.Join(worldDir, "snapshots", "*.snap.zst"))
	best, bestTick := "", -1
	for _, m := range matches {
		h, err := snapshot.ReadHeader(m)
		if err != nil {
			continue
		}
		if h.Tick > bestTick {
			best, bestTick = m, h.Tick
		}
	}
	return best
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
