package rpc

import (
	"encoding/json"

	"restakechain/crypto"
)

type registryPairParams struct {
	Operator string  `json:"operator"`
	Service  string  `json:"service"`
	Height   *uint64 `json:"height,omitempty"`
}

type registryStatusResult struct {
	Status uint8  `json:"status"`
	Label  string `json:"label"`
}

type slashingParametersParams struct {
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

type slashingParametersResult struct {
	Destination      string `json:"destination,omitempty"`
	MaxBips          uint64 `json:"maxSlashingBips"`
	ResolutionWindow uint64 `json:"resolutionWindow"`
}

type optInParams struct {
	Operator  string `json:"operator"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleRegistryStatus(params json.RawMessage) (interface{}, *RPCError) {
	var p registryPairParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	operator, rpcErr := parseAddr(p.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	service, rpcErr := parseAddr(p.Service)
	if rpcErr != nil {
		return nil, rpcErr
	}
	status, err := s.registry.Status(operator, service, p.Height)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return registryStatusResult{Status: uint8(status), Label: status.String()}, nil
}

func (s *Server) handleRegistrySlashingParameters(params json.RawMessage) (interface{}, *RPCError) {
	var p slashingParametersParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	service, rpcErr := parseAddr(p.Service)
	if rpcErr != nil {
		return nil, rpcErr
	}
	parameters, err := s.registry.SlashingParameters(service, p.Timestamp)
	if err != nil {
		return nil, mapEngineError(err)
	}
	if parameters == nil {
		return nil, nil
	}
	result := slashingParametersResult{
		MaxBips:          parameters.MaxBips,
		ResolutionWindow: parameters.ResolutionWindow,
	}
	if parameters.HasDestination() {
		result.Destination = crypto.MustAddressString(parameters.Destination)
	}
	return result, nil
}

func (s *Server) handleRegistryIsOptedIn(params json.RawMessage) (interface{}, *RPCError) {
	var p optInParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	operator, rpcErr := parseAddr(p.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	service, rpcErr := parseAddr(p.Service)
	if rpcErr != nil {
		return nil, rpcErr
	}
	optedIn, err := s.registry.IsOptedIn(operator, service, p.Timestamp)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return optedIn, nil
}
