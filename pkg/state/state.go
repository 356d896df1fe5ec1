// Package state provides an in-memory implementation of types.StateAccess,
// the snapshot/dispatch interface over the application state container.
// Hosts embedding modlink in a larger application supply their own
// implementation backed by the real store.
package state

import (
	"sync"

	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/rs/zerolog"
)

type gameState struct {
	mods        map[string]types.Mod
	activatorID string
	subscribers map[int]func()
}

// Memory is a mutex-guarded StateAccess. Snapshots are deep copies, so
// readers never observe a half-applied dispatch.
type Memory struct {
	mu     sync.Mutex
	games  map[string]*gameState
	nextID int
	logger zerolog.Logger
}

// NewMemory creates an empty in-memory state store.
func NewMemory() *Memory {
	return &Memory{
		games:  make(map[string]*gameState),
		logger: logging.GetLogger("state"),
	}
}

func (s *Memory) game(gameID string) *gameState {
	g, ok := s.games[gameID]
	if !ok {
		g = &gameState{
			mods:        make(map[string]types.Mod),
			subscribers: make(map[int]func()),
		}
		s.games[gameID] = g
	}
	return g
}

// Snapshot implements types.StateAccess.
func (s *Memory) Snapshot(gameID string) types.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.game(gameID)
	snap := types.StateSnapshot{
		Mods:        make(map[string]types.Mod, len(g.mods)),
		ActivatorID: g.activatorID,
	}
	for id, mod := range g.mods {
		mod.Files = append([]types.ManagedFile(nil), mod.Files...)
		if mod.Attributes != nil {
			attrs := make(map[string]string, len(mod.Attributes))
			for k, v := range mod.Attributes {
				attrs[k] = v
			}
			mod.Attributes = attrs
		}
		snap.Mods[id] = mod
	}
	return snap
}

// Dispatch implements types.StateAccess.
func (s *Memory) Dispatch(gameID string, action types.StateAction) {
	s.mu.Lock()
	g := s.game(gameID)

	switch a := action.(type) {
	case types.AddMod:
		g.mods[a.Mod.ID] = a.Mod
	case types.SetModState:
		if mod, ok := g.mods[a.ModID]; ok {
			mod.State = a.State
			g.mods[a.ModID] = mod
		}
	case types.RemoveMod:
		delete(g.mods, a.ModID)
	case types.SetActivator:
		g.activatorID = a.MethodID
	default:
		s.logger.Warn().Type("action", action).Msg("Unknown state action ignored")
	}

	subs := make([]func(), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock; subscribers may re-enter Snapshot.
	for _, fn := range subs {
		fn()
	}
}

// Subscribe implements types.StateAccess.
func (s *Memory) Subscribe(gameID string, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.game(gameID)
	id := s.nextID
	s.nextID++
	g.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(g.subscribers, id)
	}
}
