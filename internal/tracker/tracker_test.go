package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegisterForward_Idempotent(t *testing.T) {
	tr := New()
	orig := OriginalMessageID{PeerID: 1, MessageID: 100}
	fwd := ForwardLocation{ChatID: 10, MessageID: 300}

	if tr.RegisterForward(orig, fwd) {
		t.Error("first registration should not report already-read")
	}
	tr.RegisterForward(orig, fwd)
	tr.RegisterForward(orig, fwd)

	fwds := tr.MarkOriginalRead(orig)
	if len(fwds) != 1 {
		t.Fatalf("forwards = %d, want 1", len(fwds))
	}
	if fwds[0] != fwd {
		t.Errorf("forward = %+v, want %+v", fwds[0], fwd)
	}
}

func TestRegisterForward_ReturnsAlreadyRead(t *testing.T) {
	tr := New()
	orig := OriginalMessageID{PeerID: 1, MessageID: 100}

	tr.RegisterForward(orig, ForwardLocation{ChatID: 10, MessageID: 300})
	tr.MarkOriginalRead(orig)

	late := ForwardLocation{ChatID: 20, MessageID: 400}
	if !tr.RegisterForward(orig, late) {
		t.Error("registering a forward of an already-read original should report it")
	}
}

func TestRegisterForward_FirstSeenNotOverwritten(t *testing.T) {
	tr := New()
	base := time.Unix(1000, 0)
	tr.SetClock(func() time.Time { return base })

	orig := OriginalMessageID{PeerID: 1, MessageID: 100}
	tr.RegisterForward(orig, ForwardLocation{ChatID: 10, MessageID: 300})

	tr.SetClock(func() time.Time { return base.Add(time.Hour) })
	tr.RegisterForward(orig, ForwardLocation{ChatID: 20, MessageID: 400})

	if ts := tr.firstSeen[orig]; ts != base.Unix() {
		t.Errorf("firstSeen = %d, want %d", ts, base.Unix())
	}
}

func TestBijectionInvariant(t *testing.T) {
	tr := New()
	o1 := OriginalMessageID{PeerID: 1, MessageID: 100}
	o2 := OriginalMessageID{PeerID: 2, MessageID: 200}

	tr.RegisterForward(o1, ForwardLocation{ChatID: 10, MessageID: 300})
	tr.RegisterForward(o1, ForwardLocation{ChatID: 20, MessageID: 400})
	tr.RegisterForward(o2, ForwardLocation{ChatID: 10, MessageID: 301})

	checkBijection(t, tr)

	// cleanup must preserve the invariant for survivors
	tr.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	tr.Cleanup(24 * time.Hour)
	checkBijection(t, tr)
}

func checkBijection(t *testing.T, tr *Tracker) {
	t.Helper()
	total := 0
	for orig, fwds := range tr.originals {
		total += len(fwds)
		for _, fwd := range fwds {
			got, ok := tr.LookupForward(fwd)
			if !ok {
				t.Errorf("forward %+v missing from forward index", fwd)
				continue
			}
			if got != orig {
				t.Errorf("forward %+v resolves to %+v, want %+v", fwd, got, orig)
			}
		}
	}
	if total != len(tr.forwardIndex) {
		t.Errorf("forward index has %d entries, originals flatten to %d", len(tr.forwardIndex), total)
	}
}

func TestMarkOriginalRead_Propagation(t *testing.T) {
	tr := New()
	orig := OriginalMessageID{PeerID: 1, MessageID: 100}
	f1 := ForwardLocation{ChatID: 10, MessageID: 300}
	f2 := ForwardLocation{ChatID: 20, MessageID: 400}
	tr.RegisterForward(orig, f1)
	tr.RegisterForward(orig, f2)

	fwds := tr.MarkOriginalRead(orig)
	if len(fwds) != 2 || fwds[0] != f1 || fwds[1] != f2 {
		t.Errorf("forwards = %+v, want [%+v %+v]", fwds, f1, f2)
	}
	if !tr.IsOriginalRead(orig) {
		t.Error("original should be read")
	}

	// idempotent
	if again := tr.MarkOriginalRead(orig); len(again) != 2 {
		t.Errorf("second mark returned %d forwards, want 2", len(again))
	}
}

func TestMarkOriginalRead_Unknown(t *testing.T) {
	tr := New()
	orig := OriginalMessageID{PeerID: 9, MessageID: 9}
	if fwds := tr.MarkOriginalRead(orig); len(fwds) != 0 {
		t.Errorf("forwards = %+v, want empty", fwds)
	}
	if !tr.IsOriginalRead(orig) {
		t.Error("original should be read even with no forwards")
	}
}

func TestFindReadOriginalsInChat(t *testing.T) {
	tr := New()
	o1 := OriginalMessageID{PeerID: 1, MessageID: 100}
	o2 := OriginalMessageID{PeerID: 1, MessageID: 101}
	tr.RegisterForward(o1, ForwardLocation{ChatID: 10, MessageID: 50})
	tr.RegisterForward(o2, ForwardLocation{ChatID: 10, MessageID: 60})

	got := tr.FindReadOriginalsInChat(10, 55)
	if len(got) != 1 || got[0] != o1 {
		t.Errorf("maxID=55: got %+v, want [%+v]", got, o1)
	}

	got = tr.FindReadOriginalsInChat(10, 60)
	if len(got) != 2 {
		t.Errorf("maxID=60: got %d originals, want 2", len(got))
	}

	tr.MarkOriginalRead(o1)
	got = tr.FindReadOriginalsInChat(10, 60)
	if len(got) != 1 || got[0] != o2 {
		t.Errorf("after read: got %+v, want [%+v]", got, o2)
	}

	if got := tr.FindReadOriginalsInChat(99, 1000); len(got) != 0 {
		t.Errorf("unknown chat: got %+v, want empty", got)
	}
}

func TestCleanup(t *testing.T) {
	tr := New()
	base := time.Unix(1_000_000, 0)

	tr.SetClock(func() time.Time { return base })
	old := OriginalMessageID{PeerID: 1, MessageID: 100}
	tr.RegisterForward(old, ForwardLocation{ChatID: 10, MessageID: 300})
	tr.RegisterForward(old, ForwardLocation{ChatID: 20, MessageID: 400})
	tr.MarkOriginalRead(old)

	tr.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	fresh := OriginalMessageID{PeerID: 2, MessageID: 200}
	tr.RegisterForward(fresh, ForwardLocation{ChatID: 10, MessageID: 500})

	tr.Cleanup(24 * time.Hour)

	if _, ok := tr.originals[old]; ok {
		t.Error("stale original still in originals")
	}
	if _, ok := tr.LookupForward(ForwardLocation{ChatID: 20, MessageID: 400}); ok {
		t.Error("stale forward still in forward index")
	}
	if tr.IsOriginalRead(old) {
		t.Error("stale original still in read set")
	}
	if _, ok := tr.firstSeen[old]; ok {
		t.Error("stale original still in firstSeen")
	}
	if _, ok := tr.chatIndex[20]; ok {
		t.Error("emptied chat index bucket not dropped")
	}

	// fresh entry untouched
	if _, ok := tr.LookupForward(ForwardLocation{ChatID: 10, MessageID: 500}); !ok {
		t.Error("fresh forward was purged")
	}
	if got := tr.FindReadOriginalsInChat(10, 500); len(got) != 1 || got[0] != fresh {
		t.Errorf("chat index after cleanup: got %+v, want [%+v]", got, fresh)
	}

	// a huge max-age purges nothing that is newer than the cutoff
	tr.Cleanup(1000 * 24 * time.Hour)
	if _, ok := tr.originals[fresh]; !ok {
		t.Error("fresh original purged by huge max-age cleanup")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	tr := New()
	o1 := OriginalMessageID{PeerID: 1, MessageID: 100}
	o2 := OriginalMessageID{PeerID: 2, MessageID: 200}
	f1 := ForwardLocation{ChatID: 10, MessageID: 300}
	f2 := ForwardLocation{ChatID: 20, MessageID: 400}
	tr.RegisterForward(o1, f1)
	tr.RegisterForward(o1, f2)
	tr.RegisterForward(o2, ForwardLocation{ChatID: 10, MessageID: 301})
	tr.MarkOriginalRead(o1)

	if err := tr.Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	for fwd, orig := range tr.forwardIndex {
		got, ok := loaded.LookupForward(fwd)
		if !ok || got != orig {
			t.Errorf("forward %+v: got (%+v, %v), want (%+v, true)", fwd, got, ok, orig)
		}
	}
	if !loaded.IsOriginalRead(o1) {
		t.Error("read status lost in round trip")
	}
	if loaded.IsOriginalRead(o2) {
		t.Error("unread original became read")
	}
	if ts := loaded.firstSeen[o1]; ts != tr.firstSeen[o1] {
		t.Errorf("firstSeen = %d, want %d", ts, tr.firstSeen[o1])
	}
	// chat index must be rebuilt, not empty
	if len(loaded.chatIndex) == 0 {
		t.Error("chat index empty after load")
	}
	if got := loaded.FindReadOriginalsInChat(10, 301); len(got) != 1 || got[0] != o2 {
		t.Errorf("rebuilt chat index lookup: got %+v, want [%+v]", got, o2)
	}
	checkBijection(t, loaded)
}

func TestLoad_MissingFirstSeen(t *testing.T) {
	// files written before retention existed have no first_seen field
	path := filepath.Join(t.TempDir(), "state.json")
	data := `{
  "originals": [{"original": {"peer_id": 1, "message_id": 100}, "forwards": [{"chat_id": 10, "message_id": 300}]}],
  "forward_index": [{"forward": {"chat_id": 10, "message_id": 300}, "original": {"peer_id": 1, "message_id": 100}}],
  "read_originals": []
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(tr.firstSeen) != 0 {
		t.Errorf("firstSeen = %v, want empty", tr.firstSeen)
	}
	if _, ok := tr.LookupForward(ForwardLocation{ChatID: 10, MessageID: 300}); !ok {
		t.Error("forward missing after legacy load")
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed file")
	}
}

func TestSave_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	tr := New()
	tr.RegisterForward(OriginalMessageID{PeerID: 1, MessageID: 1}, ForwardLocation{ChatID: 2, MessageID: 2})

	if err := tr.Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestDiscussionGroupScenario(t *testing.T) {
	tr := New()
	orig := OriginalMessageID{PeerID: 1, MessageID: 100}
	native := ForwardLocation{ChatID: 10, MessageID: 300}
	other := ForwardLocation{ChatID: 20, MessageID: 400}
	tr.RegisterForward(orig, native)
	tr.RegisterForward(orig, other)

	got := tr.FindReadOriginalsInChat(10, 300)
	if len(got) != 1 || got[0] != orig {
		t.Fatalf("read event lookup: got %+v, want [%+v]", got, orig)
	}

	var remaining []ForwardLocation
	for _, fwd := range tr.MarkOriginalRead(got[0]) {
		if fwd.ChatID == 10 && fwd.MessageID <= 300 {
			continue // the copy the user just read natively
		}
		remaining = append(remaining, fwd)
	}
	if len(remaining) != 1 || remaining[0] != other {
		t.Errorf("propagation targets = %+v, want [%+v]", remaining, other)
	}
}
