package histogram

import "sync"

// noModelSentinel is persisted in place of a model name for stores that
// were never fitted. The value is historical; archives written by older
// tooling carry it.
const noModelSentinel = "NoneType"

var (
	registryMu sync.RWMutex
	registry   = map[string]Model{}
)

// RegisterModel adds a model implementation to the load-time registry.
// Archives persist model identity by name; loading an archive whose name
// is not registered fails with UnknownModelError. Typically called from
// the model package's init.
func RegisterModel(m Model) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[m.Name()] = m
}

// LookupModel resolves a registered model by name.
func LookupModel(name string) (Model, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[name]
	return m, ok
}

// Model returns the model this store was fitted with, or false if the
// store was never fitted or the model is not registered in this build.
func (s *Store) Model() (Model, bool) {
	if s.FitModel == "" || s.FitModel == noModelSentinel {
		return nil, false
	}
	return LookupModel(s.FitModel)
}
