package document

import "github.com/annosuite/annotator/internal/typeid"

// Layer groups shapes for visibility and locking. Shapes refer to layers by
// id only; a shape whose layer is unknown behaves as visible and unlocked.
type Layer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Locked  bool   `json:"locked"`
}

// LayerRegistry is the lookup table shapes' LayerID values refer into.
type LayerRegistry struct {
	layers map[string]*Layer
	order  []string
}

func NewLayerRegistry() *LayerRegistry {
	return &LayerRegistry{layers: make(map[string]*Layer)}
}

// Add registers a new visible, unlocked layer.
func (r *LayerRegistry) Add(name string) Layer {
	l := &Layer{ID: typeid.NewLayerID(), Name: name, Visible: true}
	r.layers[l.ID] = l
	r.order = append(r.order, l.ID)
	return *l
}

// Replace swaps the whole table for the given layers, keeping their order.
// Entries without an id are skipped; a repeated id keeps its last values.
func (r *LayerRegistry) Replace(layers []Layer) {
	r.layers = make(map[string]*Layer, len(layers))
	r.order = r.order[:0]
	for _, l := range layers {
		if l.ID == "" {
			continue
		}
		if _, ok := r.layers[l.ID]; !ok {
			r.order = append(r.order, l.ID)
		}
		r.layers[l.ID] = &l
	}
}

// Get returns the layer with the given id.
func (r *LayerRegistry) Get(id string) (Layer, bool) {
	if r == nil {
		return Layer{}, false
	}
	l, ok := r.layers[id]
	if !ok {
		return Layer{}, false
	}
	return *l, true
}

// Remove drops a layer. Shapes that reference it keep their LayerID and
// fall back to the default behaviour.
func (r *LayerRegistry) Remove(id string) bool {
	if _, ok := r.layers[id]; !ok {
		return false
	}
	delete(r.layers, id)
	for i, lid := range r.order {
		if lid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *LayerRegistry) SetVisible(id string, visible bool) bool {
	l, ok := r.layers[id]
	if !ok {
		return false
	}
	l.Visible = visible
	return true
}

func (r *LayerRegistry) SetLocked(id string, locked bool) bool {
	l, ok := r.layers[id]
	if !ok {
		return false
	}
	l.Locked = locked
	return true
}

// List returns the layers in creation order.
func (r *LayerRegistry) List() []Layer {
	if r == nil {
		return nil
	}
	out := make([]Layer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.layers[id])
	}
	return out
}

// Visible reports whether the shape should be drawn. A nil registry shows
// everything.
func (r *LayerRegistry) Visible(s Shape) bool {
	l, ok := r.Get(s.LayerID)
	return !ok || l.Visible
}

// Interactive reports whether the shape can be hit by selection or eraser.
func (r *LayerRegistry) Interactive(s Shape) bool {
	l, ok := r.Get(s.LayerID)
	return !ok || (l.Visible && !l.Locked)
}
