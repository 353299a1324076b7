package session

import (
	"context"
)

type LogoutOutcome struct {
	// Username is the user that was logged out.
	Username string
	// NothingToDo is set when the state was not authenticated.
	NothingToDo bool
	// RemoteErr holds a failed logout request. Local state is cleared
	// regardless.
	RemoteErr *Error
}

// Logout ends the session on the platform when it can and always forgets
// it locally.
func (s *State) Logout(ctx context.Context) LogoutOutcome {
	ctx, span := tracer.Start(ctx, "session:Logout")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		return LogoutOutcome{NothingToDo: true}
	}
	outcome := LogoutOutcome{Username: s.username}

	hopCtx, cancel := s.hopContext(ctx)
	page, err := s.transport.Get(hopCtx, s.logoutUrl())
	cancel()
	switch {
	case err != nil:
		outcome.RemoteErr = s.networkError("logging out", err)
	case page.Status >= 400:
		outcome.RemoteErr = s.statusError("logging out", page)
	}
	if outcome.RemoteErr != nil {
		s.tel.ReportWarning(report_logout_remote, outcome.RemoteErr.Message)
	}

	// a failed cookie reset is reported by resetLocked, the user is logged
	// out locally either way
	_ = s.resetLocked()
	return outcome
}
