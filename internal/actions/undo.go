package actions

import (
	"sort"
	"sync"
)

// UndoRegistry maps an external resource type to the provider action that
// deletes or archives a resource of that type. Cleanup consults it to decide
// whether a logged resource can be compensated at all.
type UndoRegistry struct {
	mu      sync.RWMutex
	actions map[string]string // resource type -> undo provider action
}

// NewUndoRegistry creates a registry pre-loaded with the built-in undo
// mappings for the supported integration families.
func NewUndoRegistry() *UndoRegistry {
	r := &UndoRegistry{actions: make(map[string]string)}
	for resourceType, action := range builtinUndoActions {
		r.actions[resourceType] = action
	}
	return r
}

var builtinUndoActions = map[string]string{
	"issue":    "tracker.delete_issue",
	"epic":     "tracker.delete_epic",
	"comment":  "tracker.delete_comment",
	"channel":  "chat.archive_channel",
	"message":  "chat.delete_message",
	"contact":  "crm.delete_contact",
	"deal":     "crm.delete_deal",
	"document": "docs.delete_document",
	"folder":   "docs.delete_folder",
}

// Register adds or replaces the undo action for a resource type.
func (r *UndoRegistry) Register(resourceType, providerAction string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[resourceType] = providerAction
}

// UndoAction returns the provider action that undoes a resource of the given
// type, or false when the type has no undo mapping.
func (r *UndoRegistry) UndoAction(resourceType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[resourceType]
	return action, ok
}

// ResourceTypes returns the registered resource types in sorted order.
func (r *UndoRegistry) ResourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
