package guardrail

import (
	"bytes"
	"errors"
	"sort"
)

// ProposalStatus tracks a guardrail proposal through its lifecycle.
type ProposalStatus uint8

const (
	// StatusUnspecified is the zero value and never persisted.
	StatusUnspecified ProposalStatus = iota
	// StatusOpen accepts votes and has not reached an outcome.
	StatusOpen
	// StatusRejected failed the threshold, either by opposing votes or by
	// expiring without passage.
	StatusRejected
	// StatusPassed reached the approval threshold. A passed proposal can
	// never be closed back to rejected.
	StatusPassed
	// StatusExecuted marks a passed proposal consumed by a slashing
	// finalize.
	StatusExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusRejected:
		return "rejected"
	case StatusPassed:
		return "passed"
	case StatusExecuted:
		return "executed"
	default:
		return "unspecified"
	}
}

// VoteOption is a ballot selection.
type VoteOption uint8

const (
	VoteUnspecified VoteOption = iota
	VoteYes
	VoteNo
	VoteAbstain
)

// Valid reports whether the option is a supported selection.
func (v VoteOption) Valid() bool {
	switch v {
	case VoteYes, VoteNo, VoteAbstain:
		return true
	default:
		return false
	}
}

func (v VoteOption) String() string {
	switch v {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	case VoteAbstain:
		return "abstain"
	default:
		return "unspecified"
	}
}

// Voter pairs a member address with its voting weight. Zero-weight members
// may propose but not vote.
type Voter struct {
	Address [20]byte `json:"address"`
	Weight  uint64   `json:"weight"`
}

// Config is the multisig membership and passage threshold, fixed at
// instantiation. The threshold is an absolute percentage of the total weight
// expressed in basis points.
type Config struct {
	Voters       []Voter `json:"voters"`
	ThresholdBps uint64  `json:"thresholdBps"`
	TotalWeight  uint64  `json:"totalWeight"`
}

var errDuplicateVoter = errors.New("guardrail: duplicate voter")

// NewConfig validates and normalises the membership set. Voters are sorted
// by address for deterministic iteration.
func NewConfig(voters []Voter, thresholdBps uint64) (*Config, error) {
	if len(voters) == 0 {
		return nil, errors.New("guardrail: at least one voter required")
	}
	if thresholdBps == 0 || thresholdBps > 10_000 {
		return nil, errors.New("guardrail: threshold must be within (0, 10000] bips")
	}
	sorted := make([]Voter, len(voters))
	copy(sorted, voters)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address[:], sorted[j].Address[:]) < 0
	})
	total := uint64(0)
	for i, v := range sorted {
		if i > 0 && sorted[i-1].Address == v.Address {
			return nil, errDuplicateVoter
		}
		total += v.Weight
	}
	if total == 0 {
		return nil, errors.New("guardrail: total voting weight must be positive")
	}
	return &Config{Voters: sorted, ThresholdBps: thresholdBps, TotalWeight: total}, nil
}

// WeightOf returns the member's weight and whether the address is a member.
func (c *Config) WeightOf(addr [20]byte) (uint64, bool) {
	if c == nil {
		return 0, false
	}
	idx := sort.Search(len(c.Voters), func(i int) bool {
		return bytes.Compare(c.Voters[i].Address[:], addr[:]) >= 0
	})
	if idx < len(c.Voters) && c.Voters[idx].Address == addr {
		return c.Voters[idx].Weight, true
	}
	return 0, false
}

// VotesNeeded is the minimum yes weight for passage: the threshold
// percentage of the total weight, rounded up.
func (c *Config) VotesNeeded() uint64 {
	return (c.TotalWeight*c.ThresholdBps + 9_999) / 10_000
}

// Proposal is a guardrail approval vote keyed by the slashing request id it
// gates. The membership and threshold are snapshotted at proposal time.
type Proposal struct {
	SlashingID    [32]byte       `json:"slashingId"`
	Proposer      [20]byte       `json:"proposer"`
	Reason        string         `json:"reason"`
	Expiration    int64          `json:"expiration"`
	Status        ProposalStatus `json:"status"`
	YesWeight     uint64         `json:"yesWeight"`
	NoWeight      uint64         `json:"noWeight"`
	AbstainWeight uint64         `json:"abstainWeight"`
	TotalWeight   uint64         `json:"totalWeight"`
	ThresholdBps  uint64         `json:"thresholdBps"`
}

// Clone copies the proposal record.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Proposal) votesNeeded() uint64 {
	return (p.TotalWeight*p.ThresholdBps + 9_999) / 10_000
}

// Ballot is a recorded vote.
type Ballot struct {
	Voter  [20]byte   `json:"voter"`
	Option VoteOption `json:"option"`
	Weight uint64     `json:"weight"`
}
