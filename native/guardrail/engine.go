package guardrail

import (
	"errors"
	"time"

	"restakechain/core/events"
	nativecommon "restakechain/native/common"
)

const moduleName = "guardrail"

// DefaultVotingSeconds bounds proposals whose creator passed no expiration.
const DefaultVotingSeconds int64 = 7 * 24 * 60 * 60

var (
	ErrNotConfigured    = errors.New("guardrail: membership not configured")
	ErrNotVoter         = errors.New("guardrail: sender is not a member")
	ErrZeroWeight       = errors.New("guardrail: zero-weight members cannot vote")
	ErrProposalExists   = errors.New("guardrail: proposal already exists")
	ErrProposalNotFound = errors.New("guardrail: proposal not found")
	ErrAlreadyVoted     = errors.New("guardrail: member already voted")
	ErrExpired          = errors.New("guardrail: proposal expired")
	ErrNotExpired       = errors.New("guardrail: proposal not expired")
	ErrWrongCloseStatus = errors.New("guardrail: proposal cannot be closed in its current status")
	ErrNotPassed        = errors.New("guardrail: proposal has not passed")
	errNilState         = errors.New("guardrail: state not configured")
)

// engineState is the persistence surface for the guardrail.
type engineState interface {
	GuardrailConfigGet() (*Config, bool, error)
	GuardrailConfigPut(cfg *Config) error
	GuardrailProposalGet(id [32]byte) (*Proposal, bool, error)
	GuardrailProposalPut(p *Proposal) error
	GuardrailBallotGet(id [32]byte, voter [20]byte) (*Ballot, bool, error)
	GuardrailBallotPut(id [32]byte, b *Ballot) error
}

// Engine runs the weighted-multisig approval gate on slashing finalization.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a guardrail engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the process-wide pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 { return e.nowFn() }

// Instantiate stores the membership set and threshold. The membership is
// immutable thereafter.
func (e *Engine) Instantiate(voters []Voter, thresholdBps uint64) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.GuardrailConfigGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, errors.New("guardrail: membership already configured")
	}
	cfg, err := NewConfig(voters, thresholdBps)
	if err != nil {
		return nil, err
	}
	if err := e.state.GuardrailConfigPut(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Engine) config() (*Config, error) {
	cfg, ok, err := e.state.GuardrailConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

// Propose opens an approval vote keyed by the slashing request id. Any
// member may propose, including zero-weight members.
func (e *Engine) Propose(sender [20]byte, slashingID [32]byte, reason string, expiration int64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	weight, isMember := cfg.WeightOf(sender)
	if !isMember {
		return nil, ErrNotVoter
	}
	if _, ok, err := e.state.GuardrailProposalGet(slashingID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrProposalExists
	}
	now := e.now()
	if expiration <= now {
		expiration = now + DefaultVotingSeconds
	}
	proposal := &Proposal{
		SlashingID:   slashingID,
		Proposer:     sender,
		Reason:       reason,
		Expiration:   expiration,
		Status:       StatusOpen,
		TotalWeight:  cfg.TotalWeight,
		ThresholdBps: cfg.ThresholdBps,
	}
	// The proposer's own weight counts as an implicit yes.
	if weight > 0 {
		proposal.YesWeight = weight
		if err := e.state.GuardrailBallotPut(slashingID, &Ballot{Voter: sender, Option: VoteYes, Weight: weight}); err != nil {
			return nil, err
		}
		if proposal.YesWeight >= proposal.votesNeeded() {
			proposal.Status = StatusPassed
		}
	}
	if err := e.state.GuardrailProposalPut(proposal); err != nil {
		return nil, err
	}
	e.emit(events.GuardrailProposed{
		SlashingID: slashingID,
		Proposer:   sender,
		Reason:     reason,
		Expiration: expiration,
		Status:     proposal.Status.String(),
	})
	return proposal.Clone(), nil
}

// Vote records a ballot and retallies. Votes are accepted on proposals whose
// outcome is already decided, for historical completeness, but only the
// Open to Passed transition counts for slashing finalization.
func (e *Engine) Vote(sender [20]byte, slashingID [32]byte, option VoteOption) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if !option.Valid() {
		return nil, errors.New("guardrail: invalid vote option")
	}
	weight, isMember := cfg.WeightOf(sender)
	if !isMember {
		return nil, ErrNotVoter
	}
	if weight == 0 {
		return nil, ErrZeroWeight
	}
	proposal, ok, err := e.state.GuardrailProposalGet(slashingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	switch proposal.Status {
	case StatusOpen, StatusPassed, StatusRejected:
	default:
		return nil, ErrWrongCloseStatus
	}
	if e.now() >= proposal.Expiration {
		return nil, ErrExpired
	}
	if _, voted, err := e.state.GuardrailBallotGet(slashingID, sender); err != nil {
		return nil, err
	} else if voted {
		return nil, ErrAlreadyVoted
	}
	if err := e.state.GuardrailBallotPut(slashingID, &Ballot{Voter: sender, Option: option, Weight: weight}); err != nil {
		return nil, err
	}
	switch option {
	case VoteYes:
		proposal.YesWeight += weight
	case VoteNo:
		proposal.NoWeight += weight
	case VoteAbstain:
		proposal.AbstainWeight += weight
	}
	if proposal.Status == StatusOpen {
		needed := proposal.votesNeeded()
		if proposal.YesWeight >= needed {
			proposal.Status = StatusPassed
		} else if proposal.NoWeight > proposal.TotalWeight-needed {
			// Passage is arithmetically impossible.
			proposal.Status = StatusRejected
		}
	}
	if err := e.state.GuardrailProposalPut(proposal); err != nil {
		return nil, err
	}
	e.emit(events.GuardrailVoted{
		SlashingID: slashingID,
		Voter:      sender,
		Option:     option.String(),
		Weight:     weight,
		Status:     proposal.Status.String(),
	})
	return proposal.Clone(), nil
}

// Close rejects an open proposal whose expiration has passed without
// reaching the threshold. A passed proposal can never be closed; this
// protects against timing attacks at the expiration boundary.
func (e *Engine) Close(sender [20]byte, slashingID [32]byte) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	proposal, ok, err := e.state.GuardrailProposalGet(slashingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	if proposal.Status != StatusOpen {
		return nil, ErrWrongCloseStatus
	}
	if e.now() < proposal.Expiration {
		return nil, ErrNotExpired
	}
	proposal.Status = StatusRejected
	if err := e.state.GuardrailProposalPut(proposal); err != nil {
		return nil, err
	}
	e.emit(events.GuardrailClosed{SlashingID: slashingID, Sender: sender})
	return proposal.Clone(), nil
}

// IsApproved reports whether the slashing id carries guardrail approval.
func (e *Engine) IsApproved(slashingID [32]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	proposal, ok, err := e.state.GuardrailProposalGet(slashingID)
	if err != nil || !ok {
		return false
	}
	return proposal.Status == StatusPassed || proposal.Status == StatusExecuted
}

// MarkExecuted consumes a passed proposal when the router finalizes the
// slash it gates.
func (e *Engine) MarkExecuted(slashingID [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	proposal, ok, err := e.state.GuardrailProposalGet(slashingID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProposalNotFound
	}
	if proposal.Status != StatusPassed {
		return ErrNotPassed
	}
	proposal.Status = StatusExecuted
	if err := e.state.GuardrailProposalPut(proposal); err != nil {
		return err
	}
	e.emit(events.GuardrailExecuted{SlashingID: slashingID})
	return nil
}

// Proposal returns the proposal keyed by the slashing id.
func (e *Engine) Proposal(slashingID [32]byte) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, ok, err := e.state.GuardrailProposalGet(slashingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProposalNotFound
	}
	return proposal.Clone(), nil
}

// Ballot returns the member's recorded vote, if any.
func (e *Engine) Ballot(slashingID [32]byte, voter [20]byte) (*Ballot, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.GuardrailBallotGet(slashingID, voter)
}
