package activity

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the live state graph for commands, messages and sagas. It is
// an explicitly constructed object with no hidden process-wide state;
// construct one per engine instance.
//
// Inserts are atomic and exactly-once (message inserts idempotent by
// design). A state object is fully constructed before insertion becomes
// visible; subsequent in-place mutations go through the per-entity locks on
// the state objects themselves.
type Store struct {
	seq atomic.Uint64

	cmdMu    sync.RWMutex
	commands map[CommandID]*CommandState

	msgMu    sync.RWMutex
	messages map[MessageID]*MessageState

	sagaMu sync.RWMutex
	sagas  map[SagaID]*SagaState
}

// NewStore creates an empty live state store.
func NewStore() *Store {
	return &Store{
		commands: make(map[CommandID]*CommandState),
		messages: make(map[MessageID]*MessageState),
		sagas:    make(map[SagaID]*SagaState),
	}
}

// addCommand inserts a fully constructed command state. Returns false when
// the ID is already tracked.
func (s *Store) addCommand(cs *CommandState) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if _, exists := s.commands[cs.id]; exists {
		return false
	}
	cs.seq = s.seq.Add(1)
	s.commands[cs.id] = cs
	return true
}

// Command returns the live state for a tracked command.
func (s *Store) Command(id CommandID) (*CommandState, bool) {
	s.cmdMu.RLock()
	defer s.cmdMu.RUnlock()
	cs, ok := s.commands[id]
	return cs, ok
}

// addMessage inserts a message state if absent. A repeated insert for the
// same ID is a no-op, never an error.
func (s *Store) addMessage(ms *MessageState) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	if _, exists := s.messages[ms.messageID]; exists {
		return
	}
	s.messages[ms.messageID] = ms
}

// Message returns the state for an observed message.
func (s *Store) Message(id MessageID) (*MessageState, bool) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	ms, ok := s.messages[id]
	return ms, ok
}

// getOrCreateSaga returns the saga state for the ID, creating it on first
// sight with the given type name and start time.
func (s *Store) getOrCreateSaga(id SagaID, typeName string, started time.Time) *SagaState {
	s.sagaMu.RLock()
	ss, ok := s.sagas[id]
	s.sagaMu.RUnlock()
	if ok {
		return ss
	}

	s.sagaMu.Lock()
	defer s.sagaMu.Unlock()
	if ss, ok = s.sagas[id]; ok {
		return ss
	}
	ss = &SagaState{
		id:        id,
		typeName:  typeName,
		startTime: started,
		status:    SagaRunning,
	}
	s.sagas[id] = ss
	return ss
}

// Saga returns the state for an observed saga.
func (s *Store) Saga(id SagaID) (*SagaState, bool) {
	s.sagaMu.RLock()
	defer s.sagaMu.RUnlock()
	ss, ok := s.sagas[id]
	return ss, ok
}

// commandSnapshot returns the current set of tracked commands. The slice is
// a private copy; the pointed-to states remain live.
func (s *Store) commandSnapshot() []*CommandState {
	s.cmdMu.RLock()
	defer s.cmdMu.RUnlock()
	out := make([]*CommandState, 0, len(s.commands))
	for _, cs := range s.commands {
		out = append(out, cs)
	}
	return out
}

// Len returns the number of tracked commands.
func (s *Store) Len() int {
	s.cmdMu.RLock()
	defer s.cmdMu.RUnlock()
	return len(s.commands)
}
