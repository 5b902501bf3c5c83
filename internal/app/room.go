// Package app coordinates the room: membership changes, presence
// announcements, text fan-out with self-echo and pruning of dead members.
package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/core"
	"github.com/dkeye/Ping/internal/domain"
)

type Room struct {
	Registry *core.Registry
	Router   *core.Router
	Policy   Policy
	Now      func() time.Time
}

func NewRoom(policy Policy) *Room {
	reg := core.NewRegistry()
	return &Room{
		Registry: reg,
		Router:   core.NewRouter(reg),
		Policy:   policy,
		Now:      time.Now,
	}
}

// Join admits c and announces the new presence count to everyone.
func (r *Room) Join(c core.Connection) int {
	r.Registry.Admit(c)
	count := r.announce()
	log.Info().Str("module", "app.room").Str("conn", string(c.ID())).Int("count", count).Msg("member joined")
	return count
}

// Leave removes c and announces the reduced count. It reports false, and
// announces nothing, when c was already gone.
func (r *Room) Leave(c core.Connection) bool {
	if !r.Registry.Remove(c.ID()) {
		return false
	}
	count := r.announce()
	log.Info().Str("module", "app.room").Str("conn", string(c.ID())).Int("count", count).Msg("member left")
	return true
}

// Say fans a text out to everyone but from, then echoes it back to from
// flagged as self.
func (r *Room) Say(from core.Connection, content string) domain.Message {
	msg := domain.NewText(content, r.Now())
	r.handleDropped(r.Router.Broadcast(msg, from.ID()))

	if err := r.Router.Send(from, msg.Echo()); err != nil {
		r.handleDropped(core.PublishResult{Dropped: []core.Failure{{Conn: from, Err: err}}})
	}
	return msg
}

// ShareFile announces an already stored upload to every member.
func (r *Room) ShareFile(filename, storedName string, size int64) domain.Message {
	msg := domain.NewFile(filename, storedName, size, r.Now())
	res := r.Router.Broadcast(msg, "")
	r.handleDropped(res)
	log.Info().Str("module", "app.room").Str("stored_name", storedName).Int64("size", size).Int("sent_to", res.SentTo).Msg("file shared")
	return msg
}

func (r *Room) Count() int { return r.Registry.Count() }

func (r *Room) announce() int {
	count, res := r.Router.AnnouncePresence()
	r.handleDropped(res)
	return count
}

// handleDropped applies the policy to failed deliveries. A kicked member is
// closed and the new count announced, which may in turn fail for others.
func (r *Room) handleDropped(res core.PublishResult) {
	pending := res.Dropped
	for len(pending) > 0 {
		f := pending[0]
		pending = pending[1:]
		log.Warn().Err(f.Err).Str("module", "app.room").Str("conn", string(f.Conn.ID())).Msg("delivery failed")

		if r.Policy == nil || r.Policy.OnDeliveryFailure(f) != KickMember {
			continue
		}
		if !r.Registry.Remove(f.Conn.ID()) {
			continue
		}
		f.Conn.Close()
		count, next := r.Router.AnnouncePresence()
		log.Info().Str("module", "app.room").Str("conn", string(f.Conn.ID())).Int("count", count).Msg("member pruned")
		pending = append(pending, next.Dropped...)
	}
}
