package virtualloop

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
)

// promiseSite is the (file, line) creation site recorded for a tracked
// promise when the loop runs in debug mode.
type promiseSite struct {
	file string
	line int
}

// trackPromise registers a newly created promise under a fresh
// identifier, capturing the caller two frames up (the code that called
// ScheduleTask; for calls made through ScheduleTaskAfter, that is
// ScheduleTaskAfter itself). Outside debug mode it records nothing and
// returns ""; otherwise it locks l.mu internally, so callers must not
// hold it.
func (l *Loop) trackPromise() string {
	if !l.debug {
		return ""
	}
	id := uuid.NewString()
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	}
	l.mu.Lock()
	l.promises[id] = promiseSite{file: file, line: line}
	l.mu.Unlock()
	return id
}

// untrackPromise removes a promise's creation-site entry once it
// settles. A no-op outside debug mode or for an untracked id.
func (l *Loop) untrackPromise(id string) {
	if !l.debug || id == "" {
		return
	}
	l.mu.Lock()
	delete(l.promises, id)
	l.mu.Unlock()
}

// LeakedPromises returns the creation sites of every promise still
// outstanding. Non-empty at shutdown signals a leak (spec §4.2): debug
// callers are expected to treat this as a precondition failure.
func (l *Loop) LeakedPromises() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.promises))
	for id, site := range l.promises {
		out[id] = fmtSite(site)
	}
	return out
}

func fmtSite(s promiseSite) string {
	return fmt.Sprintf("%s:%d", s.file, s.line)
}
