package service

import (
	"context"
	"fmt"
	"slices"

	"authority/internal/auth/device"
	"authority/internal/auth/models"
	id "authority/pkg/domain"
	"authority/pkg/requestcontext"
)

// sessionChange describes one edit to a principal's tracked sessions.
type sessionChange struct {
	// add is recorded (or refreshed) as the most recent session.
	add    id.SessionID
	origin string
	// replace is dropped, and add inherits its creation time.
	replace id.SessionID
	// remove is dropped without a replacement.
	remove id.SessionID
	// clear drops every tracked session before add is applied.
	clear bool
	// login prepends a LoginRecord to the history.
	login bool
}

// trackSession applies change and swallows any failure. Session tracking is
// bookkeeping; the credentials it describes are already valid.
func (s *Service) trackSession(ctx context.Context, userID id.UserID, change sessionChange) {
	if err := s.applySessionChange(ctx, userID, change); err != nil {
		s.metrics.IncrementSessionTrackingFailure()
		s.logger.WarnContext(ctx, "session tracking failed",
			"user_id", userID.String(),
			"session_id", change.add.String(),
			"error", err,
		)
	}
}

// applySessionChange is a read-modify-write on the principal's session list,
// serialized per user within this process.
func (s *Service) applySessionChange(ctx context.Context, userID id.UserID, change sessionChange) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	now := requestcontext.Now(ctx)
	createdAt := now

	sessions := make([]models.ActiveSession, 0, len(user.ActiveSessions)+1)
	if !change.clear {
		for _, sess := range user.ActiveSessions {
			if sess.SessionID == change.replace || sess.SessionID == change.add {
				createdAt = sess.CreatedAt
				continue
			}
			if sess.SessionID == change.remove {
				continue
			}
			sessions = append(sessions, sess)
		}
	}

	var info device.Info
	if !change.add.IsNil() {
		ua := requestcontext.UserAgent(ctx)
		info = device.Parse(ua)
		sessions = append([]models.ActiveSession{{
			SessionID:    change.add,
			Device:       info.Device,
			Browser:      info.Browser,
			OS:           info.OS,
			IPAddress:    requestcontext.ClientIP(ctx),
			UserAgent:    ua,
			Origin:       change.origin,
			CreatedAt:    createdAt,
			LastActivity: now,
		}}, sessions...)
	}

	if evicted := len(sessions) - s.cfg.MaxSessions; evicted > 0 {
		slices.SortStableFunc(sessions, func(a, b models.ActiveSession) int {
			return b.LastActivity.Compare(a.LastActivity)
		})
		sessions = sessions[:s.cfg.MaxSessions]
		s.metrics.IncrementSessionsEvicted(evicted)
	}

	history := user.LoginHistory
	if change.login && !change.add.IsNil() {
		history = append([]models.LoginRecord{{
			SessionID: change.add,
			IPAddress: requestcontext.ClientIP(ctx),
			Device:    info.Device,
			Browser:   info.Browser,
			OS:        info.OS,
			At:        now,
		}}, history...)
		if len(history) > s.cfg.LoginHistoryLimit {
			history = history[:s.cfg.LoginHistoryLimit]
		}
	}

	if err := s.users.UpdateSessions(ctx, userID, sessions, history, now); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
