package activity

import (
	"sort"
	"strings"
	"time"
)

// stackTracer is implemented by errors that carry a captured stack trace,
// such as the pipeline's recovered panics.
type stackTracer interface {
	StackTrace() string
}

// handlerView is a point-in-time copy of one handler state.
type handlerView struct {
	name       string
	status     HandlerStatus
	startTime  time.Time
	completion time.Time
	err        error
}

// Project derives the externally visible CommandStatus from a command's
// live state. It only reads; the returned snapshot is immutable.
//
// Derivation rules:
//   - Status: with no handlers the command is Sent; with all handlers
//     completed it is Completed, or Errored if any failed; otherwise
//     Processing. A previously latched terminal status never regresses to
//     Sent or Processing.
//   - FinishTime: defined only once all handlers have completed and all
//     linked sagas have a completion time; the later of the two maxima.
//   - Progress: explicit progress verbatim (clamped for display), otherwise
//     completed handlers / total handlers x 100. Best-effort: handlers
//     appended later can make derived progress regress.
func Project(cs *CommandState) *CommandStatus {
	cs.mu.Lock()
	handlers := make([]handlerView, len(cs.handlerStates))
	for i, h := range cs.handlerStates {
		handlers[i] = handlerView{
			name:       h.handlerType,
			status:     h.status,
			startTime:  h.startTime,
			completion: h.completionTime,
			err:        h.err,
		}
	}
	sagas := make([]*SagaState, 0, len(cs.sagaStates))
	for _, ss := range cs.sagaStates {
		sagas = append(sagas, ss)
	}
	var explicit *float64
	if cs.explicitProgress != nil {
		v := *cs.explicitProgress
		explicit = &v
	}
	attempt := cs.attempt
	terminal, latched := cs.terminal, cs.terminalReached
	cs.mu.Unlock()

	out := &CommandStatus{
		CommandID:      cs.id,
		Name:           cs.summary,
		CommandName:    cs.commandName,
		CommandType:    cs.commandType,
		InitiatingUser: cs.initiatingUser,
		StartTime:      cs.startTime,
		Attempt:        attempt,
		Properties:     cs.properties,
	}

	out.Status = deriveStatus(handlers)
	if latched && !out.Status.Terminal() {
		out.Status = terminal
	}
	out.Progress = deriveProgress(handlers, explicit)

	sagaViews := make([]sagaSnapshot, len(sagas))
	for i, ss := range sagas {
		sagaViews[i] = ss.snapshot()
	}
	out.FinishTime = deriveFinishTime(handlers, sagaViews)

	out.HandlerErrors, out.LastError, out.StackTrace = deriveErrors(handlers)

	out.Handlers = make([]HandlerSummary, len(handlers))
	for i, h := range handlers {
		out.Handlers[i] = HandlerSummary{Name: h.name, Status: h.status, StartTime: h.startTime}
	}

	sort.SliceStable(sagaViews, func(i, j int) bool {
		return sagaViews[i].startTime.Before(sagaViews[j].startTime)
	})
	out.Sagas = make([]SagaSummary, len(sagaViews))
	for i, sv := range sagaViews {
		out.Sagas[i] = SagaSummary{Name: sv.typeName, SagaID: sv.id, Status: sv.status, StartTime: sv.startTime}
	}

	return out
}

func deriveStatus(handlers []handlerView) Status {
	if len(handlers) == 0 {
		return StatusSent
	}
	failed := false
	for _, h := range handlers {
		if h.completion.IsZero() {
			return StatusProcessing
		}
		if h.err != nil {
			failed = true
		}
	}
	if failed {
		return StatusErrored
	}
	return StatusCompleted
}

func deriveProgress(handlers []handlerView, explicit *float64) float64 {
	if explicit != nil {
		return clampProgress(*explicit)
	}
	if len(handlers) == 0 {
		return 0
	}
	completed := 0
	for _, h := range handlers {
		if !h.completion.IsZero() {
			completed++
		}
	}
	return float64(completed) / float64(len(handlers)) * 100
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func deriveFinishTime(handlers []handlerView, sagas []sagaSnapshot) *time.Time {
	if len(handlers) == 0 && len(sagas) == 0 {
		return nil
	}
	var max time.Time
	for _, h := range handlers {
		if h.completion.IsZero() {
			return nil
		}
		if h.completion.After(max) {
			max = h.completion
		}
	}
	for _, sv := range sagas {
		if sv.completionTime.IsZero() {
			return nil
		}
		if sv.completionTime.After(max) {
			max = sv.completionTime
		}
	}
	return &max
}

// deriveErrors surfaces a single failing handler's error directly, or the
// concatenation of all failures in handler order.
func deriveErrors(handlers []handlerView) ([]HandlerError, string, string) {
	var errs []HandlerError
	for _, h := range handlers {
		if h.err == nil {
			continue
		}
		he := HandlerError{Handler: h.name, Message: h.err.Error()}
		if st, ok := h.err.(stackTracer); ok {
			he.StackTrace = st.StackTrace()
		}
		errs = append(errs, he)
	}

	switch len(errs) {
	case 0:
		return nil, "", ""
	case 1:
		return errs, errs[0].Message, errs[0].StackTrace
	}

	messages := make([]string, len(errs))
	traces := make([]string, 0, len(errs))
	for i, he := range errs {
		messages[i] = he.Message
		if he.StackTrace != "" {
			traces = append(traces, he.StackTrace)
		}
	}
	return errs, strings.Join(messages, "; "), strings.Join(traces, "\n")
}
