package tracker

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSON maps can't use struct keys, so the persisted form flattens each map
// into a list of pairs.
type originalEntry struct {
	Original OriginalMessageID `json:"original"`
	Forwards []ForwardLocation `json:"forwards"`
}

type forwardEntry struct {
	Forward  ForwardLocation   `json:"forward"`
	Original OriginalMessageID `json:"original"`
}

type firstSeenEntry struct {
	Original  OriginalMessageID `json:"original"`
	Timestamp int64             `json:"ts"`
}

type state struct {
	Originals     []originalEntry     `json:"originals"`
	ForwardIndex  []forwardEntry      `json:"forward_index"`
	ReadOriginals []OriginalMessageID `json:"read_originals"`
	// absent in files written by older versions
	FirstSeen []firstSeenEntry `json:"first_seen,omitempty"`
}

// Encode serializes the tracker. Call it under the index lock; the actual
// file write can then happen outside it.
func (t *Tracker) Encode() ([]byte, error) {
	s := state{
		Originals:     make([]originalEntry, 0, len(t.originals)),
		ForwardIndex:  make([]forwardEntry, 0, len(t.forwardIndex)),
		ReadOriginals: make([]OriginalMessageID, 0, len(t.readOriginals)),
		FirstSeen:     make([]firstSeenEntry, 0, len(t.firstSeen)),
	}
	for orig, fwds := range t.originals {
		s.Originals = append(s.Originals, originalEntry{orig, fwds})
	}
	for fwd, orig := range t.forwardIndex {
		s.ForwardIndex = append(s.ForwardIndex, forwardEntry{fwd, orig})
	}
	for orig := range t.readOriginals {
		s.ReadOriginals = append(s.ReadOriginals, orig)
	}
	for orig, ts := range t.firstSeen {
		s.FirstSeen = append(s.FirstSeen, firstSeenEntry{orig, ts})
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tracker state: %w", err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temp sibling and renames it into place,
// so a crash mid-write never corrupts the existing file.
func WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}

// Save is Encode + WriteFileAtomic for callers that already hold the lock
// for the whole operation (startup and shutdown saves).
func (t *Tracker) Save(path string) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Load reads tracker state from a JSON file. The chat index is derived
// state and is always rebuilt from the forward index, never trusted from
// disk.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	t := New()
	for _, e := range s.Originals {
		t.originals[e.Original] = e.Forwards
	}
	for _, e := range s.ForwardIndex {
		t.forwardIndex[e.Forward] = e.Original
	}
	for _, orig := range s.ReadOriginals {
		t.readOriginals[orig] = struct{}{}
	}
	for _, e := range s.FirstSeen {
		t.firstSeen[e.Original] = e.Timestamp
	}
	t.rebuildChatIndex()
	return t, nil
}
