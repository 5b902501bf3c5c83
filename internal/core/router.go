package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/domain"
)

// Failure is one connection that could not take a frame.
type Failure struct {
	Conn Connection
	Err  error
}

// PublishResult reports delivery stats to the caller. Failures are never
// returned as errors.
type PublishResult struct {
	SentTo  int
	Dropped []Failure
}

// Router fans messages out to the Registry's members.
type Router struct {
	reg *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// Broadcast serializes msg once and offers it to every member except
// exclude. An empty exclude targets everyone.
func (r *Router) Broadcast(msg domain.Message, exclude ConnID) PublishResult {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "core.router").Msg("marshal broadcast")
		return PublishResult{}
	}
	var res PublishResult
	r.reg.View(func(members []Connection) {
		res = fanOut(members, Frame(data), exclude)
	})
	log.Debug().Str("module", "core.router").Str("type", string(msg.Kind)).Str("from", string(exclude)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// AnnouncePresence sends the membership size to every member. Count and
// recipients come from the same locked view, so every copy carries the
// number of members it was delivered to.
func (r *Router) AnnouncePresence() (int, PublishResult) {
	var (
		count int
		res   PublishResult
	)
	r.reg.View(func(members []Connection) {
		count = len(members)
		data, err := json.Marshal(domain.NewPresence(count))
		if err != nil {
			log.Error().Err(err).Str("module", "core.router").Msg("marshal presence")
			return
		}
		res = fanOut(members, Frame(data), "")
	})
	log.Debug().Str("module", "core.router").Int("count", count).Int("dropped", len(res.Dropped)).Msg("presence announced")
	return count, res
}

// Send delivers msg to a single connection.
func (r *Router) Send(c Connection, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.TrySend(Frame(data))
}

func fanOut(members []Connection, data Frame, exclude ConnID) PublishResult {
	var res PublishResult
	for _, c := range members {
		if exclude != "" && c.ID() == exclude {
			continue
		}
		if err := c.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, Failure{Conn: c, Err: err})
			continue
		}
		res.SentTo++
	}
	return res
}
