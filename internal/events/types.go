// Package events names the subjects and event types agenthost publishes.
package events

import "fmt"

// Event types
const (
	SessionStateChanged = "session.state_changed"
	SessionExited       = "session.exited"
	SessionCreated      = "session.created"
	SessionClosed       = "session.closed"
	AppsRefreshed       = "detection.apps.refreshed"
	AgentsRefreshed     = "detection.agents.refreshed"
)

// Subjects
const (
	AppsRefreshedSubject   = "detection.apps.refreshed"
	AgentsRefreshedSubject = "detection.agents.refreshed"
	// SessionWildcard matches every session subject.
	SessionWildcard = "session.>"
)

// SessionStateSubject is the subject for state changes of one session.
func SessionStateSubject(sessionID string) string {
	return fmt.Sprintf("session.%s.state", sessionID)
}

// SessionExitedSubject is the subject for the process exit of one session.
func SessionExitedSubject(sessionID string) string {
	return fmt.Sprintf("session.%s.exited", sessionID)
}

// SessionLifecycleSubject carries record changes (created, closed) of one session.
func SessionLifecycleSubject(sessionID string) string {
	return fmt.Sprintf("session.%s.lifecycle", sessionID)
}
