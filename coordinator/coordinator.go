// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/idocharity/rounds/auth"
	"github.com/idocharity/rounds/ledger"
	"github.com/idocharity/rounds/localstate"
	"github.com/idocharity/rounds/models"
	"github.com/idocharity/rounds/notify"
)

// State is the client coordinator's position in the round lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateWaiting
	StateVoting
	StateClosing
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaiting:
		return "waiting"
	case StateVoting:
		return "voting"
	case StateClosing:
		return "closing"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// ErrVoteInFlight rejects re-clicks while a cast is already pending.
var ErrVoteInFlight = errors.New("a vote is already in flight")

// RoundService is the slice of the lifecycle manager the coordinator
// consumes.
type RoundService interface {
	CurrentRound(ctx context.Context) (*models.Round, error)
	CloseRound(ctx context.Context, roundID string) (string, []models.CharityTally, error)
}

// VoteService is the slice of the vote ledger the coordinator consumes.
type VoteService interface {
	CastVote(ctx context.Context, roundID, charityID, voterID string, meta ledger.CastMeta) (models.Tallies, error)
	GetTallies(ctx context.Context, roundID string) (models.Tallies, error)
	VoterCharity(ctx context.Context, roundID, voterID string) (string, bool, error)
}

// CharityResolver resolves a round's selected charity ids to catalog
// entries.
type CharityResolver interface {
	GetMany(ctx context.Context, ids []string) ([]models.Charity, error)
}

// Sink receives presentation-layer callbacks. All calls happen on the
// session's event loop, one at a time.
type Sink interface {
	ShowWaiting()
	ShowRound(rc models.RoundWithCharities, hasVoted bool, votedCharityID string)
	UpdateTallies(t models.Tallies)
	CountdownTick(remaining time.Duration)
	VoteAccepted(charityID string)
	VoteRejected(reason string)
	WinnerAnnounced(winnerID string, results []models.CharityTally)
	NextRoundCountdown(secondsLeft int)
}

// Config tunes the session's timers. Zero values take the defaults used
// in production: a 1 Hz countdown, a 30 second post-result pause, and a
// 5 second bound on remote calls.
type Config struct {
	TickInterval    time.Duration
	TransitionDelay time.Duration
	RemoteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.TransitionDelay == 0 {
		c.TransitionDelay = 30 * time.Second
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = 5 * time.Second
	}
	return c
}

// Local-persistence keys. The cached vote is only a duplicate-attempt
// suppressor; the ledger's voter set is authoritative.
const (
	keyVoterID     = "voter_id"
	keyVoteRound   = "vote_round"
	keyVoteCharity = "vote_charity"
)

// Session drives one connected client: countdown, subscriptions, vote
// casting, and the expiry-triggered close attempt. Everything that
// touches session state runs on a single ordered event loop, so "timer
// expired" and "server says completed" can never race each other.
type Session struct {
	voterID   string
	rounds    RoundService
	votes     VoteService
	charities CharityResolver
	hub       *notify.Hub
	local     localstate.Store
	sink      Sink
	cfg       Config

	votePending atomic.Bool
	voteReqs    chan string
	state       atomic.Int32

	// Loop-owned; never touched outside Run's goroutine.
	round          *models.Round
	hasVoted       bool
	votedCharityID string
	talliesCh      <-chan models.Tallies
	roundsCh       <-chan models.Round
	cancelTallies  func()
	cancelRounds   func()
	transitionEnd  time.Time
}

// NewSession builds a coordinator session. The voter identifier is
// loaded from local state or minted and persisted on first use.
func NewSession(rounds RoundService, votes VoteService, charities CharityResolver, hub *notify.Hub, local localstate.Store, sink Sink, cfg Config) (*Session, error) {
	voterID, ok := local.Get(keyVoterID)
	if !ok || voterID == "" {
		voterID = auth.NewVoterID()
		if err := local.Set(keyVoterID, voterID); err != nil {
			return nil, err
		}
	}

	return &Session{
		voterID:   voterID,
		rounds:    rounds,
		votes:     votes,
		charities: charities,
		hub:       hub,
		local:     local,
		sink:      sink,
		cfg:       cfg.withDefaults(),
		voteReqs:  make(chan string, 1),
	}, nil
}

// VoterID returns the session's opaque voter identifier.
func (s *Session) VoterID() string { return s.voterID }

// State reports the coordinator's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// CastVote requests a vote for charityID. Safe to call from any
// goroutine; the outcome arrives via the sink. Further attempts are
// rejected immediately while one is pending or after a successful cast,
// so an impatient re-click can never double-submit.
func (s *Session) CastVote(charityID string) error {
	if !s.votePending.CompareAndSwap(false, true) {
		return ErrVoteInFlight
	}
	select {
	case s.voteReqs <- charityID:
		return nil
	default:
		s.votePending.Store(false)
		return ErrVoteInFlight
	}
}

// Run drives the session until ctx is cancelled. The loop is the only
// place session state changes: ticks, pushed snapshots, and vote
// requests are processed strictly one at a time.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	defer s.unsubscribe()

	s.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.onTick(ctx)
		case t, ok := <-s.talliesCh:
			if ok && s.State() == StateVoting {
				s.sink.UpdateTallies(t)
			}
		case r, ok := <-s.roundsCh:
			if ok {
				s.onRoundEvent(ctx, r)
			}
		case charityID := <-s.voteReqs:
			s.onCastVote(ctx, charityID)
		}
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// initialize runs the full discovery sequence: find the active round,
// reconcile the local vote cache against its identity, subscribe, and
// render. Storage errors and "no round" both land in Waiting; the next
// tick retries.
func (s *Session) initialize(ctx context.Context) {
	s.setState(StateUninitialized)
	s.unsubscribe()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	r, err := s.rounds.CurrentRound(cctx)
	if err != nil {
		slog.Warn("round discovery failed", "error", err)
	}
	if err != nil || r == nil {
		s.toWaiting()
		return
	}

	s.round = r
	s.reconcileVoteState(cctx)

	charities, err := s.charities.GetMany(cctx, r.CharityIDs)
	if err != nil {
		slog.Warn("charity resolution failed", "error", err, "round_id", r.ID)
		s.toWaiting()
		return
	}

	s.subscribe(r.ID)
	s.sink.ShowRound(models.RoundWithCharities{Round: *r, Charities: charities}, s.hasVoted, s.votedCharityID)
	if t, err := s.votes.GetTallies(cctx, r.ID); err == nil {
		s.sink.UpdateTallies(t)
	}
	s.setState(StateVoting)

	// The discovered round may already be past its end.
	if r.Remaining(time.Now()) == 0 {
		s.enterClosing(ctx)
	}
}

// reconcileVoteState rebuilds "have I voted" for the current round.
// A cached vote from a different round is stale and discarded; whatever
// the ledger says about this round wins over the cache either way.
func (s *Session) reconcileVoteState(ctx context.Context) {
	s.hasVoted = false
	s.votedCharityID = ""

	if cachedRound, ok := s.local.Get(keyVoteRound); ok {
		if cachedRound == s.round.ID {
			if ch, ok := s.local.Get(keyVoteCharity); ok {
				s.hasVoted = true
				s.votedCharityID = ch
			}
		} else {
			s.clearVoteCache()
		}
	}

	ch, voted, err := s.votes.VoterCharity(ctx, s.round.ID, s.voterID)
	if err != nil {
		// Keep the cache's answer; the cast path re-checks authoritatively.
		return
	}
	if voted {
		s.hasVoted = true
		s.votedCharityID = ch
		s.cacheVote(ch)
	} else if s.hasVoted {
		s.hasVoted = false
		s.votedCharityID = ""
		s.clearVoteCache()
	}
}

func (s *Session) onTick(ctx context.Context) {
	switch s.State() {
	case StateWaiting:
		s.initialize(ctx)
	case StateVoting:
		remaining := s.round.Remaining(time.Now())
		s.sink.CountdownTick(remaining)
		if remaining == 0 {
			s.enterClosing(ctx)
		}
	case StateTransitioning:
		left := time.Until(s.transitionEnd)
		if left <= 0 {
			s.initialize(ctx)
			return
		}
		s.sink.NextRoundCountdown(int((left + time.Second - 1) / time.Second))
	}
}

// onRoundEvent reacts to pushed round changes. A completed event for the
// current round means another client closed it first; the close path is
// shared because CloseRound is idempotent and returns the stored outcome.
func (s *Session) onRoundEvent(ctx context.Context, r models.Round) {
	if s.State() != StateVoting || s.round == nil || r.ID != s.round.ID {
		return
	}
	if r.Status == models.StatusCompleted {
		s.enterClosing(ctx)
	}
}

// enterClosing attempts the close and, on an outcome, announces the
// winner and starts the local post-result countdown. Redundant calls
// from many clients are the expected steady state, not an error path.
func (s *Session) enterClosing(ctx context.Context) {
	s.setState(StateClosing)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	winnerID, results, err := s.rounds.CloseRound(cctx, s.round.ID)
	if err != nil {
		slog.Warn("round close failed", "error", err, "round_id", s.round.ID)
		s.toWaiting()
		return
	}

	s.unsubscribe()
	s.clearVoteCache()
	s.sink.WinnerAnnounced(winnerID, results)
	s.transitionEnd = time.Now().Add(s.cfg.TransitionDelay)
	s.setState(StateTransitioning)
	s.sink.NextRoundCountdown(int(s.cfg.TransitionDelay / time.Second))
}

func (s *Session) onCastVote(ctx context.Context, charityID string) {
	defer s.votePending.Store(false)

	if s.State() != StateVoting || s.round == nil {
		s.sink.VoteRejected("No active round to vote in")
		return
	}
	if s.hasVoted {
		s.sink.VoteRejected("You have already voted in this round")
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	_, err := s.votes.CastVote(cctx, s.round.ID, charityID, s.voterID, ledger.CastMeta{})
	switch {
	case err == nil:
		s.hasVoted = true
		s.votedCharityID = charityID
		s.cacheVote(charityID)
		s.sink.VoteAccepted(charityID)
	case errors.Is(err, ledger.ErrAlreadyVoted):
		// Another device or tab holding the same identifier got in first.
		s.hasVoted = true
		if ch, voted, err2 := s.votes.VoterCharity(cctx, s.round.ID, s.voterID); err2 == nil && voted {
			s.votedCharityID = ch
			s.cacheVote(ch)
		}
		s.sink.VoteRejected("You have already voted in this round")
	case errors.Is(err, ledger.ErrRoundClosed):
		s.sink.VoteRejected("Voting for this round has closed")
	case errors.Is(err, ledger.ErrRoundNotFound):
		s.sink.VoteRejected("That round is no longer available")
	default:
		slog.Warn("vote cast failed", "error", err, "round_id", s.round.ID)
		s.sink.VoteRejected("Vote failed, please try again")
	}
}

func (s *Session) toWaiting() {
	s.unsubscribe()
	s.round = nil
	s.setState(StateWaiting)
	s.sink.ShowWaiting()
}

func (s *Session) subscribe(roundID string) {
	s.talliesCh, s.cancelTallies = s.hub.SubscribeTallies(roundID)
	s.roundsCh, s.cancelRounds = s.hub.SubscribeRounds()
}

func (s *Session) unsubscribe() {
	if s.cancelTallies != nil {
		s.cancelTallies()
		s.cancelTallies = nil
		s.talliesCh = nil
	}
	if s.cancelRounds != nil {
		s.cancelRounds()
		s.cancelRounds = nil
		s.roundsCh = nil
	}
}

func (s *Session) cacheVote(charityID string) {
	if err := s.local.Set(keyVoteRound, s.round.ID); err != nil {
		slog.Warn("failed to cache vote state", "error", err)
		return
	}
	if err := s.local.Set(keyVoteCharity, charityID); err != nil {
		slog.Warn("failed to cache vote state", "error", err)
	}
}

func (s *Session) clearVoteCache() {
	_ = s.local.Delete(keyVoteRound)
	_ = s.local.Delete(keyVoteCharity)
}
