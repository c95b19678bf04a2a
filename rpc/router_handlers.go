package rpc

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"

	"restakechain/crypto"
)

type operatorParams struct {
	Operator string `json:"operator"`
}

type slashingRequestParams struct {
	ID string `json:"id"`
}

type vaultLockJSON struct {
	Vault  string   `json:"vault"`
	Amount *big.Int `json:"amount"`
}

type slashingRequestJSON struct {
	ID                 string          `json:"id"`
	Service            string          `json:"service"`
	Operator           string          `json:"operator"`
	Bips               uint64          `json:"bips"`
	InfractionTime     int64           `json:"infractionTime"`
	Metadata           string          `json:"metadata"`
	RequestTime        int64           `json:"requestTime"`
	ResolutionDeadline int64           `json:"resolutionDeadline"`
	Stage              string          `json:"stage"`
	Locked             []vaultLockJSON `json:"locked,omitempty"`
}

type setVaultParams struct {
	Vault       string `json:"vault"`
	Whitelisted bool   `json:"whitelisted"`
}

type lockPeriodParams struct {
	Seconds uint64 `json:"seconds"`
}

func addressStrings(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, crypto.MustAddressString(addr))
	}
	return out
}

func (s *Server) handleRouterListVaults(json.RawMessage) (interface{}, *RPCError) {
	vaults, err := s.router.ListVaults()
	if err != nil {
		return nil, mapEngineError(err)
	}
	return addressStrings(vaults), nil
}

func (s *Server) handleRouterOperatorVaults(params json.RawMessage) (interface{}, *RPCError) {
	var p operatorParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	operator, rpcErr := parseAddr(p.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vaults, err := s.router.OperatorVaults(operator)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return addressStrings(vaults), nil
}

func (s *Server) handleRouterLockPeriod(json.RawMessage) (interface{}, *RPCError) {
	return s.router.WithdrawalLockPeriod(), nil
}

func (s *Server) handleRouterSlashingRequest(params json.RawMessage) (interface{}, *RPCError) {
	var p slashingRequestParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseSlashingID(p.ID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.router.Request(id)
	if err != nil {
		return nil, mapEngineError(err)
	}
	result := slashingRequestJSON{
		ID:                 hex.EncodeToString(request.ID[:]),
		Service:            crypto.MustAddressString(request.Service),
		Operator:           crypto.MustAddressString(request.Operator),
		Bips:               request.Bips,
		InfractionTime:     request.InfractionTime,
		Metadata:           request.Metadata,
		RequestTime:        request.RequestTime,
		ResolutionDeadline: request.ResolutionDeadline,
		Stage:              request.Stage.String(),
	}
	for _, lock := range request.Locked {
		result.Locked = append(result.Locked, vaultLockJSON{
			Vault:  crypto.MustAddressString(lock.Vault),
			Amount: lock.Amount,
		})
	}
	return result, nil
}

func (s *Server) handleRouterSetVault(params json.RawMessage) (interface{}, *RPCError) {
	var p setVaultParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	vaultAddr, rpcErr := parseAddr(p.Vault)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.router.SetVault(s.admin, vaultAddr, p.Whitelisted); err != nil {
		return nil, mapEngineError(err)
	}
	return true, nil
}

func (s *Server) handleRouterSetLockPeriod(params json.RawMessage) (interface{}, *RPCError) {
	var p lockPeriodParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.router.SetWithdrawalLockPeriod(s.admin, p.Seconds); err != nil {
		return nil, mapEngineError(err)
	}
	return true, nil
}

func parseSlashingID(raw string) ([32]byte, *RPCError) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return id, &RPCError{Code: codeInvalidParams, Message: "slashing id must be 32 hex-encoded bytes"}
	}
	copy(id[:], decoded)
	return id, nil
}
