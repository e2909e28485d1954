package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chadiek/voice-order/internal/agent"
	"github.com/chadiek/voice-order/internal/metrics"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
	"github.com/chadiek/voice-order/internal/tools"
)

// Spoken replies for failures. Callers never hear an error code.
const (
	apologyRetry    = "Sorry, something went wrong on my end. Could you say that again?"
	apologyTerminal = "I'm sorry, we're having technical difficulties. Please call back in a few minutes."
	goodbye         = "Thanks for calling, goodbye!"
	notHeard        = "Sorry, I didn't catch that. Could you say it again?"
)

// maxHandoffs bounds how many agents may introduce themselves in one turn.
const maxHandoffs = 4

// Reply is the result of one turn.
type Reply struct {
	Text    string
	EndCall bool
	// Escalate asks the telephony layer to bridge the caller to a person.
	Escalate bool
	Agent    session.AgentName
}

// Transcriber turns one audio segment into text. Empty text means silence.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer renders text as 8kHz μ-law audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Archiver keeps a finished call.
type Archiver interface {
	Archive(ctx context.Context, s *session.Session) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store session.Store
	// Locks guard field commits; share them with the barge-in handler.
	Locks   *session.Locks
	Agents  *agent.Set
	Tools   *tools.Registry
	STT     Transcriber
	TTS     Synthesizer
	Archive Archiver
	Metrics *metrics.Metrics
	Now     func() time.Time
	// OnEnd is told when a call's session is removed.
	OnEnd func(sessionID string)
}

// Orchestrator runs turns: utterance in, reply out, session committed.
type Orchestrator struct {
	d     Deps
	turns *session.Locks
}

func New(d Deps) *Orchestrator {
	if d.Locks == nil {
		d.Locks = session.NewLocks()
	}
	if d.Agents == nil {
		d.Agents = agent.NewSet(nil)
	}
	if d.Tools == nil {
		d.Tools = tools.NewRegistry(tools.Deps{})
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Orchestrator{d: d, turns: session.NewLocks()}
}

// StartCall returns the call's session, creating it on first sight, and the
// greeting to speak.
func (o *Orchestrator) StartCall(ctx context.Context, callID, callerID string) (*session.Session, Reply, error) {
	if s, err := o.d.Store.GetByCallID(ctx, callID); err == nil {
		return s, Reply{Text: "Welcome back. How can I help?", Agent: s.ActiveAgent}, nil
	}
	s, err := o.d.Store.Create(ctx, callID, callerID)
	if err != nil {
		log.Printf("call %s: create session: %v", callID, err)
		return nil, Reply{Text: apologyTerminal, EndCall: true}, err
	}
	o.d.Metrics.SessionStarted()
	log.Printf("[%s] call %s started from %s", s.ID, callID, callerID)

	unlock := o.turns.Lock(s.ID)
	defer unlock()

	work := s.Clone()
	reply := Reply{Agent: work.ActiveAgent}
	a, err := o.d.Agents.Get(work.ActiveAgent)
	if err == nil {
		var d agent.Decision
		d, err = a.Introduce(ctx, work, o.d.Tools.Bind(a.Name(), work))
		reply.Text = d.Reply
	}
	if err != nil {
		log.Printf("[%s] greeting failed: %v", s.ID, err)
		reply.Text = "Thanks for calling! What would you like to order today?"
	}
	work.Append(session.RoleAssistant, reply.Text, o.d.Now())
	s, err = o.commit(ctx, work)
	if err != nil {
		return nil, Reply{Text: apologyTerminal, EndCall: true}, err
	}
	return s, reply, nil
}

// HandleTurn processes one caller utterance. It always returns a reply;
// failures become apologies.
func (o *Orchestrator) HandleTurn(ctx context.Context, id, utterance string) (reply Reply) {
	start := o.d.Now()
	unlock := o.turns.Lock(id)
	defer unlock()

	snap, err := o.snapshot(ctx, id)
	if err != nil {
		log.Printf("[%s] turn on missing session: %v", id, err)
		return Reply{Text: apologyTerminal, EndCall: true}
	}
	utterance = strings.TrimSpace(utterance)
	log.Printf("[%s] heard(%s): %s", id, snap.ActiveAgent, utterance)

	outcome := "ok"
	defer func() {
		o.d.Metrics.ObserveTurn(string(snap.ActiveAgent), outcome, o.d.Now().Sub(start))
	}()

	work := snap.Clone()
	reply, err = o.decide(ctx, work, utterance)
	if err != nil {
		outcome = "error"
		log.Printf("[%s] turn failed: %v", id, err)
		reply = Reply{Text: apologyRetry, Agent: snap.ActiveAgent}
		if errors.Is(err, session.ErrUnknownAgent) {
			reply = Reply{Text: apologyTerminal, EndCall: true, Agent: snap.ActiveAgent}
		}
		// side effects of a failed turn are dropped; the exchange is still logged
		work = snap.Clone()
		work.Append(session.RoleUser, utterance, o.d.Now())
		if reply.EndCall {
			work.Ended = true
		}
	} else if len(work.Transfers) > len(snap.Transfers) {
		outcome = "transfer"
	}
	if reply.EndCall && outcome == "ok" {
		outcome = "ended"
	}
	work.Append(session.RoleAssistant, reply.Text, o.d.Now())

	if _, err := o.commit(ctx, work); err != nil {
		log.Printf("[%s] commit failed: %v", id, err)
		if errors.Is(err, session.ErrNotFound) {
			reply.EndCall = true
		}
	}
	log.Printf("[%s] reply(%s): %s", id, reply.Agent, reply.Text)
	return reply
}

// decide runs the active agent against work. Panics are returned as errors.
func (o *Orchestrator) decide(ctx context.Context, work *session.Session, u string) (r Reply, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", work.ActiveAgent, rec)
		}
	}()

	work.Append(session.RoleUser, u, o.d.Now())
	if work.ActiveAgent == session.AgentHuman {
		return Reply{Text: agent.Handoff(session.AgentHuman), EndCall: true, Escalate: true, Agent: session.AgentHuman}, nil
	}
	a, err := o.d.Agents.Get(work.ActiveAgent)
	if err != nil {
		return Reply{}, err
	}
	if u == "" {
		return Reply{Text: notHeard, Agent: a.Name()}, nil
	}
	if stage.Terminal(work.Stage) && agent.IsGoodbye(u) {
		work.Ended = true
		return Reply{Text: goodbye, EndCall: true, Agent: a.Name()}, nil
	}

	// A pending payment confirmation outranks every agent's own routing.
	switch {
	case work.AwaitingConfirmation && (agent.IsConfirmation(u) || agent.IsCancel(u)):
		if a.Name() != session.AgentPayment {
			o.recordTransfer(work, a.Name(), session.AgentPayment)
			if a, err = o.d.Agents.Get(session.AgentPayment); err != nil {
				return Reply{}, err
			}
		}
	default:
		if to := a.ShouldTransfer(work); to != "" {
			return o.handoff(ctx, work, a.Name(), to, agent.Handoff(to))
		}
	}

	d, err := a.DecideReply(ctx, work, u, o.d.Tools.Bind(a.Name(), work))
	if err != nil {
		return Reply{}, err
	}
	if d.Next != "" && d.Next != a.Name() {
		r, err = o.handoff(ctx, work, a.Name(), d.Next, d.Reply)
		if err == nil && d.EndCall {
			r.EndCall = true
		}
		return r, err
	}
	if d.EndCall {
		work.Ended = true
	}
	return Reply{Text: d.Reply, EndCall: d.EndCall, Agent: a.Name()}, nil
}

// handoff moves work to the target agent and lets each new agent introduce
// itself, following chained handoffs.
func (o *Orchestrator) handoff(ctx context.Context, work *session.Session, from, to session.AgentName, lead string) (Reply, error) {
	var parts []string
	if lead != "" {
		parts = append(parts, lead)
	}
	r := Reply{Agent: from}
	for hops := 0; to != "" && to != from && hops < maxHandoffs; hops++ {
		o.recordTransfer(work, from, to)
		r.Agent = to
		if to == session.AgentHuman {
			if lead != agent.Handoff(session.AgentHuman) {
				parts = append(parts, agent.Handoff(session.AgentHuman))
			}
			r.EndCall, r.Escalate = true, true
			work.Ended = true
			break
		}
		next, err := o.d.Agents.Get(to)
		if err != nil {
			return Reply{}, err
		}
		d, err := next.Introduce(ctx, work, o.d.Tools.Bind(to, work))
		if err != nil {
			return Reply{}, err
		}
		if d.Reply != "" {
			parts = append(parts, d.Reply)
		}
		if d.EndCall {
			r.EndCall = true
			work.Ended = true
			break
		}
		from, to = to, d.Next
	}
	r.Text = strings.Join(parts, " ")
	return r, nil
}

func (o *Orchestrator) recordTransfer(work *session.Session, from, to session.AgentName) {
	rec := session.TransferRecord{
		ID:        strings.ToLower(ulid.Make().String()),
		SessionID: work.ID,
		From:      from,
		To:        to,
		Summary:   agent.Summary(work),
		At:        o.d.Now(),
	}
	work.Transfers = append(work.Transfers, rec)
	work.ActiveAgent = to
	o.d.Metrics.ObserveTransfer(string(from), string(to))
	log.Printf("[%s] transfer %s -> %s", work.ID, from, to)
}

func (o *Orchestrator) snapshot(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.d.Locks.Lock(id)
	defer unlock()
	return o.d.Store.Get(ctx, id)
}

// commit writes work back. Playback fields belong to the barge-in handler and
// keep their latest stored values.
func (o *Orchestrator) commit(ctx context.Context, work *session.Session) (*session.Session, error) {
	unlock := o.d.Locks.Lock(work.ID)
	defer unlock()
	return o.d.Store.Update(ctx, work.ID, func(cur *session.Session) error {
		tts, mode, interrupted := cur.TTSActive, cur.Mode, cur.Interrupted
		*cur = *work.Clone()
		cur.TTSActive, cur.Mode, cur.Interrupted = tts, mode, interrupted
		return nil
	})
}

// HandleAudio runs speech-to-text, the turn, and text-to-speech. A nil audio
// result with a non-empty reply means synthesis failed and the caller should
// fall back to text. Silence yields an empty reply.
func (o *Orchestrator) HandleAudio(ctx context.Context, id string, audio []byte) ([]byte, Reply) {
	if o.d.STT == nil || o.d.TTS == nil {
		log.Printf("[%s] audio turn without speech adapters", id)
		return nil, Reply{Text: notHeard}
	}
	var reply Reply
	text, err := o.d.STT.Transcribe(ctx, audio)
	switch {
	case err != nil:
		log.Printf("[%s] transcription failed: %v", id, err)
		reply = Reply{Text: notHeard}
	case strings.TrimSpace(text) == "":
		return nil, Reply{}
	default:
		reply = o.HandleTurn(ctx, id, text)
	}
	out, err := o.d.TTS.Synthesize(ctx, reply.Text)
	if err != nil {
		log.Printf("[%s] synthesis failed: %v", id, err)
		return nil, reply
	}
	return out, reply
}

// EndCall archives and removes the call's session. Unknown calls are ignored.
func (o *Orchestrator) EndCall(ctx context.Context, callID string) error {
	s, err := o.d.Store.GetByCallID(ctx, callID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	unlock := o.turns.Lock(s.ID)
	defer unlock()

	if o.d.Archive != nil {
		if err := o.d.Archive.Archive(ctx, s); err != nil {
			log.Printf("[%s] archive failed: %v", s.ID, err)
		}
	}
	if err := o.d.Store.EndByCallID(ctx, callID); err != nil {
		return err
	}
	o.d.Metrics.SessionEnded()
	if o.d.OnEnd != nil {
		o.d.OnEnd(s.ID)
	}
	log.Printf("[%s] call %s ended (stage %s, %d turns)", s.ID, callID, s.Stage, len(s.Turns))
	return nil
}

// Session returns a copy of the session for id.
func (o *Orchestrator) Session(ctx context.Context, id string) (*session.Session, error) {
	return o.snapshot(ctx, id)
}

// CallSession returns a copy of the live session for a telephony call id.
func (o *Orchestrator) CallSession(ctx context.Context, callID string) (*session.Session, error) {
	return o.d.Store.GetByCallID(ctx, callID)
}
