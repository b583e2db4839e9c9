package expression

// Scope is an immutable chain of bindings over the root input data. Child
// scopes shadow their parents; the root data is consulted last.
type Scope struct {
	parent   *Scope
	bindings map[string]any
	data     any
}

// NewScope starts a chain over the item's input data.
func NewScope(data any) *Scope {
	return &Scope{data: data}
}

// With returns a child scope with extra bindings. The receiver is unchanged,
// so sibling loop iterations never see each other's aliases.
func (s *Scope) With(bindings map[string]any) *Scope {
	cp := make(map[string]any, len(bindings))
	for k, v := range bindings {
		cp[k] = v
	}
	return &Scope{parent: s, bindings: cp, data: s.Data()}
}

// Data is the root input data.
func (s *Scope) Data() any {
	if s == nil {
		return nil
	}
	return s.data
}

// Lookup resolves a top-level name: innermost binding first, then the root
// data when it is an object.
func (s *Scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.bindings[name]; ok {
			return v, true
		}
	}
	if m, ok := s.Data().(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	return nil, false
}

// Flatten merges the root data and every binding into one object, inner
// bindings winning. Query-language expressions evaluate against this view.
func (s *Scope) Flatten() map[string]any {
	out := map[string]any{}
	if m, ok := s.Data().(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].bindings {
			out[k] = v
		}
	}
	return out
}
