package document

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LayersKey is the snapshot entry holding the layer table. Every other key
// is a decimal page number.
const LayersKey = "layers"

// Snapshot is a Document together with the layers its shapes refer to.
// Layers is nil when the encoded form carried no layer table.
type Snapshot struct {
	Pages  Document
	Layers []Layer
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Pages)+1)
	for n, p := range s.Pages {
		out[strconv.Itoa(n)] = p
	}
	if len(s.Layers) > 0 {
		out[LayersKey] = s.Layers
	}
	return json.Marshal(out)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var snap Snapshot
	if v, ok := raw[LayersKey]; ok {
		if err := json.Unmarshal(v, &snap.Layers); err != nil {
			return fmt.Errorf("layers: %w", err)
		}
		if snap.Layers == nil {
			snap.Layers = []Layer{}
		}
		delete(raw, LayersKey)
	}
	snap.Pages = make(Document, len(raw))
	for key, v := range raw {
		n, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid page number %q", key)
		}
		var ps *PageState
		if err := json.Unmarshal(v, &ps); err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
		if ps == nil {
			ps = &PageState{Shapes: []Shape{}}
		}
		snap.Pages[n] = ps
	}
	*s = snap
	return nil
}

// DecodeSnapshot parses a snapshot with its optional layer table.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode annotations: %w", err)
	}
	return snap, nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Pages: s.Pages.Clone()}
	if s.Layers != nil {
		out.Layers = append([]Layer{}, s.Layers...)
	}
	return out
}

// Registry builds a layer registry from the snapshot's layer table.
func (s Snapshot) Registry() *LayerRegistry {
	r := NewLayerRegistry()
	r.Replace(s.Layers)
	return r
}
