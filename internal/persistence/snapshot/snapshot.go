// Package snapshot reads and writes world snapshots: a zstd stream holding a
// JSON header line followed by a msgpack body.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack"
)

// Version is the current snapshot format.
const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	RunID   string `json:"run_id,omitempty"`
	Tick    int    `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64  `json:"seed"`
	ItemsDigest string `json:"items_digest,omitempty"`
	Digest      string `json:"digest"`

	Places []PlaceV1 `json:"places"`
	Agents []AgentV1 `json:"agents"`
	Events []EventV1 `json:"events,omitempty"`

	NextEventSeq  uint64 `json:"next_event_seq"`
	DroppedEvents uint64 `json:"dropped_events,omitempty"`
}

type PlaceV1 struct {
	Name      string         `json:"name"`
	Neighbors []string       `json:"neighbors,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Purpose   string         `json:"purpose,omitempty"`
	Present   []string       `json:"present,omitempty"`
	Inventory map[string]int `json:"inventory,omitempty"`
	Vendor    *VendorV1      `json:"vendor,omitempty"`
}

type VendorV1 struct {
	Prices  map[string]float64 `json:"prices"`
	Stock   map[string]int     `json:"stock"`
	Buyback map[string]float64 `json:"buyback,omitempty"`
}

type AgentV1 struct {
	ID       string          `json:"id"`
	Persona  PersonaV1       `json:"persona"`
	Physio   PhysioV1        `json:"physio"`
	Location string          `json:"location,omitempty"`
	Calendar []AppointmentV1 `json:"calendar,omitempty"`

	Inventory  map[string]int `json:"inventory,omitempty"`
	Memory     []MemoryV1     `json:"memory,omitempty"`
	MemoryFrom int            `json:"memory_from,omitempty"`
	Plan       []string       `json:"plan,omitempty"`
	Thought    string         `json:"thought,omitempty"`

	BusyUntil    int            `json:"busy_until"`
	LastUsed     map[string]int `json:"last_used,omitempty"`
	LastEventSeq uint64         `json:"last_event_seq"`

	Alive  bool   `json:"alive"`
	Cause  string `json:"cause,omitempty"`
	DiedAt int    `json:"died_at,omitempty"`
}

type PersonaV1 struct {
	Name      string             `json:"name"`
	Age       int                `json:"age"`
	Job       string             `json:"job,omitempty"`
	City      string             `json:"city,omitempty"`
	Bio       string             `json:"bio,omitempty"`
	Values    []string           `json:"values,omitempty"`
	Goals     []string           `json:"goals,omitempty"`
	Traits    map[string]float64 `json:"traits,omitempty"`
	Workplace string             `json:"workplace,omitempty"`
	Stage     string             `json:"stage,omitempty"`
}

type PhysioV1 struct {
	Energy   float64        `json:"energy"`
	Hunger   float64        `json:"hunger"`
	Stress   float64        `json:"stress"`
	Social   float64        `json:"social"`
	Fun      float64        `json:"fun"`
	Hygiene  float64        `json:"hygiene"`
	Comfort  float64        `json:"comfort"`
	Bladder  float64        `json:"bladder"`
	Mood     string         `json:"mood,omitempty"`
	Moodlets map[string]int `json:"moodlets,omitempty"`
}

type AppointmentV1 struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Location string `json:"location"`
	Label    string `json:"label,omitempty"`
}

type MemoryV1 struct {
	Tick       int       `json:"tick"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Importance float64   `json:"importance"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

type EventV1 struct {
	Seq   uint64 `json:"seq"`
	Tick  int    `json:"tick"`
	Place string `json:"place"`
	Actor string `json:"actor,omitempty"`
	Kind  string `json:"kind"`
	Text  string `json:"text"`
}

// Path is the conventional location of a snapshot under a world's data dir.
func Path(worldDir string, tick int) string {
	return filepath.Join(worldDir, "snapshots", strconv.Itoa(tick)+".snap.zst")
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	me := msgpack.NewEncoder(bw)
	me.UseJSONTag(true)
	if err := me.Encode(&snap); err != nil {
		return fmt.Errorf("msgpack encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	md := msgpack.NewDecoder(br)
	md.UseJSONTag(true)
	if err := md.Decode(&snap); err != nil {
		return snap, fmt.Errorf("msgpack decode: %w", err)
	}
	return snap, nil
}
