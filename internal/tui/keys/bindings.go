// Package keys maps key events to actions per focus scope.
package keys

import "github.com/gdamore/tcell/v2"

// Scopes.
const (
	Global = ""
	List   = "list"
	Window = "window"
	Search = "search"
)

// Action is one keybinding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // e.g. "Enter"
	Description string
	Handler     func()
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds bindings per scope in registration order, so hints render
// in a stable order.
type Registry struct {
	scopes map[string][]*Action
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers a binding in scope. Global bindings apply everywhere.
func (r *Registry) Add(scope string, a *Action) {
	r.scopes[scope] = append(r.scopes[scope], a)
}

// Hints returns "key:description" labels for scope followed by the global ones.
func (r *Registry) Hints(scope string) []string {
	var hints []string
	for _, s := range []string{scope, Global} {
		for _, a := range r.scopes[s] {
			if a.Description == "" {
				continue
			}
			hints = append(hints, a.Label+":"+a.Description)
		}
		if scope == Global {
			break
		}
	}
	return hints
}

// HandleEvent runs the first matching binding of scope, then of the global
// scope. It reports whether one matched.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, s := range []string{scope, Global} {
		for _, a := range r.scopes[s] {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
