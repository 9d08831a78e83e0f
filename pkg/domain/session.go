package domain

import "time"

// State identifies where a session sits in the asset-generation workflow.
// The coordination layer persists whatever state it is handed; transition
// legality is the rules engine's concern.
type State string

const (
	StateInitializing          State = "initializing"
	StateWaitingForInput       State = "waiting_for_input"
	StateEnhancing             State = "enhancing"
	StateSelectingOperation    State = "selecting_operation"
	StateSelectingModel        State = "selecting_model"
	StateConfiguringParameters State = "configuring_parameters"
	StateGeneratingAsset       State = "generating_asset"
	StateUploadingAsset        State = "uploading_asset"
	StateCompleted             State = "completed"
	StateError                 State = "error"
)

// Well-known context keys.
const (
	// ContextKeyAssets holds the list of generated asset entries.
	ContextKeyAssets = "assets"
	// ContextKeyOperation holds the currently selected operation.
	ContextKeyOperation = "operation"
	// ContextKeyModel holds the currently selected model id.
	ContextKeyModel = "model"
)

// appendKeys are context keys whose values are lists with append semantics:
// a context patch concatenates onto the stored list instead of replacing it.
var appendKeys = map[string]struct{}{
	ContextKeyAssets: {},
}

// IsAppendKey reports whether a context key uses append semantics.
func IsAppendKey(key string) bool {
	_, ok := appendKeys[key]
	return ok
}

// Metadata tracks interaction bookkeeping for a session.
type Metadata struct {
	InteractionCount int        `json:"interactionCount"`
	LastInteraction  string     `json:"lastInteraction,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
}

// Session is the unit of per-(user, thread) workflow state. The session
// store owns the persisted representation; callers always receive a
// deserialized copy and route mutations back through the store.
type Session struct {
	SessionID    string         `json:"sessionId"`
	UserID       string         `json:"userId"`
	ThreadID     string         `json:"threadId"`
	ChannelID    string         `json:"channelId"`
	State        State          `json:"state"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Context      map[string]any `json:"context"`
	Metadata     Metadata       `json:"metadata"`
}

// NewSession creates a session in the initializing state with the default
// context shape seeded.
func NewSession(sessionID, userID, threadID, channelID string, now time.Time) *Session {
	return &Session{
		SessionID:    sessionID,
		UserID:       userID,
		ThreadID:     threadID,
		ChannelID:    channelID,
		State:        StateInitializing,
		CreatedAt:    now,
		LastActivity: now,
		Context: map[string]any{
			ContextKeyAssets: []any{},
		},
		Metadata: Metadata{
			StartedAt: now,
		},
	}
}

// Expired reports whether the session is logically absent: its last activity
// is older than the idle timeout. Lazy expiry on read and the sweeper both
// use this predicate so the two paths never diverge.
func (s *Session) Expired(timeout time.Duration, now time.Time) bool {
	return s.LastActivity.Add(timeout).Before(now)
}

// Touch refreshes the activity timestamp. LastActivity is monotonically
// non-decreasing for a given session.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Duration returns the elapsed wall-clock time of the session, up to its end
// timestamp if it has one.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.Metadata.EndedAt != nil {
		end = *s.Metadata.EndedAt
	}
	return end.Sub(s.Metadata.StartedAt)
}
