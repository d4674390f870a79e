package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReplayFileRoundTrip(t *testing.T) {
	sim := smallCity(t)
	playScript(t, sim)
	rec := RecordReplay(sim)

	path := filepath.Join(t.TempDir(), "run.replay")
	if err := WriteReplay(path, rec); err != nil {
		t.Fatalf("WriteReplay: %v", err)
	}
	// Writing again replaces the file rather than failing on the schema.
	if err := WriteReplay(path, rec); err != nil {
		t.Fatalf("second WriteReplay: %v", err)
	}

	got, err := ReadReplay(path)
	if err != nil {
		t.Fatalf("ReadReplay: %v", err)
	}
	if got.Options != rec.Options || got.FinalTick != rec.FinalTick || got.Checksum != rec.Checksum {
		t.Fatalf("header = %+v/%d/%s, want %+v/%d/%s",
			got.Options, got.FinalTick, got.Checksum, rec.Options, rec.FinalTick, rec.Checksum)
	}
	if len(got.Records) != len(rec.Records) {
		t.Fatalf("got %d records, want %d", len(got.Records), len(rec.Records))
	}
	for i := range rec.Records {
		if got.Records[i].Tick != rec.Records[i].Tick || got.Records[i].Result != rec.Records[i].Result {
			t.Errorf("record %d = %+v, want %+v", i, got.Records[i], rec.Records[i])
		}
		if got.Records[i].Action.Action != rec.Records[i].Action.Action {
			t.Errorf("record %d action = %#v, want %#v", i, got.Records[i].Action.Action, rec.Records[i].Action.Action)
		}
	}

	rebuilt, err := got.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rebuilt.Clock.Tick != sim.Clock.Tick {
		t.Errorf("rebuilt tick = %d, want %d", rebuilt.Clock.Tick, sim.Clock.Tick)
	}
}

func TestReplayChecksumMismatch(t *testing.T) {
	sim := smallCity(t)
	playScript(t, sim)
	rec := RecordReplay(sim)
	rec.Checksum = Checksum([]byte("some other city"))

	if _, err := rec.Rebuild(); !errors.Is(err, ErrReplayMismatch) {
		t.Fatalf("Rebuild with wrong checksum: %v, want ErrReplayMismatch", err)
	}
}

func TestReplayExtraTicksChangeTheCity(t *testing.T) {
	sim := smallCity(t)
	playScript(t, sim)
	rec := RecordReplay(sim)
	rec.FinalTick += 5
	if _, err := rec.Rebuild(); !errors.Is(err, ErrReplayMismatch) {
		t.Fatalf("Rebuild past the recorded tick: %v, want ErrReplayMismatch", err)
	}
}

func TestReadReplayMissingFile(t *testing.T) {
	_, err := ReadReplay(filepath.Join(t.TempDir(), "nope.replay"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadReplay(missing) = %v, want ErrNotExist", err)
	}
}

func TestEmptyReplay(t *testing.T) {
	sim := smallCity(t)
	sim.Advance(10)
	rec := RecordReplay(sim)
	if len(rec.Records) != 0 {
		t.Fatalf("fresh city has %d records", len(rec.Records))
	}
	path := filepath.Join(t.TempDir(), "idle.replay")
	if err := WriteReplay(path, rec); err != nil {
		t.Fatal(err)
	}
	got, err := ReadReplay(path)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := got.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rebuilt.Clock.Tick != 10 {
		t.Errorf("tick = %d, want 10", rebuilt.Clock.Tick)
	}
}
