package rpc

import (
	"encoding/hex"
	"encoding/json"

	"restakechain/crypto"
)

type proposalParams struct {
	ID string `json:"id"`
}

type proposalJSON struct {
	SlashingID    string `json:"slashingId"`
	Proposer      string `json:"proposer"`
	Reason        string `json:"reason"`
	Expiration    int64  `json:"expiration"`
	Status        string `json:"status"`
	YesWeight     uint64 `json:"yesWeight"`
	NoWeight      uint64 `json:"noWeight"`
	AbstainWeight uint64 `json:"abstainWeight"`
	TotalWeight   uint64 `json:"totalWeight"`
}

type pauseParams struct {
	Module string `json:"module,omitempty"`
}

func (s *Server) handleGuardrailProposal(params json.RawMessage) (interface{}, *RPCError) {
	var p proposalParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseSlashingID(p.ID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	proposal, err := s.guardrails.Proposal(id)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return proposalJSON{
		SlashingID:    hex.EncodeToString(proposal.SlashingID[:]),
		Proposer:      crypto.MustAddressString(proposal.Proposer),
		Reason:        proposal.Reason,
		Expiration:    proposal.Expiration,
		Status:        proposal.Status.String(),
		YesWeight:     proposal.YesWeight,
		NoWeight:      proposal.NoWeight,
		AbstainWeight: proposal.AbstainWeight,
		TotalWeight:   proposal.TotalWeight,
	}, nil
}

func (s *Server) handlePauserPause(params json.RawMessage) (interface{}, *RPCError) {
	var p pauseParams
	if len(params) > 0 {
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if p.Module == "" {
		s.pauses.PauseAll()
	} else {
		s.pauses.Pause(p.Module)
	}
	return true, nil
}

func (s *Server) handlePauserResume(params json.RawMessage) (interface{}, *RPCError) {
	var p pauseParams
	if len(params) > 0 {
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if p.Module == "" {
		s.pauses.ResumeAll()
	} else {
		s.pauses.Resume(p.Module)
	}
	return true, nil
}
