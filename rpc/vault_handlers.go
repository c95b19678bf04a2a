package rpc

import (
	"encoding/json"
	"math/big"
)

type vaultAddressParams struct {
	Vault string `json:"vault"`
}

type vaultAccountParams struct {
	Vault   string `json:"vault"`
	Account string `json:"account"`
}

type queuedWithdrawalJSON struct {
	Controller      string   `json:"controller"`
	Shares          *big.Int `json:"shares"`
	UnlockTimestamp int64    `json:"unlockTimestamp"`
}

func (s *Server) handleVaultInfo(params json.RawMessage) (interface{}, *RPCError) {
	var p vaultAddressParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr(p.Vault)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := s.vaults.Info(addr)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return info, nil
}

func (s *Server) handleVaultSharesOf(params json.RawMessage) (interface{}, *RPCError) {
	var p vaultAccountParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	vaultAddr, rpcErr := parseAddr(p.Vault)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddr(p.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	shares, err := s.vaults.SharesOf(vaultAddr, account)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return shares.String(), nil
}

func (s *Server) handleVaultQueued(params json.RawMessage) (interface{}, *RPCError) {
	var p vaultAccountParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	vaultAddr, rpcErr := parseAddr(p.Vault)
	if rpcErr != nil {
		return nil, rpcErr
	}
	controller, rpcErr := parseAddr(p.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	entry, ok, err := s.vaults.QueuedFor(vaultAddr, controller)
	if err != nil {
		return nil, mapEngineError(err)
	}
	if !ok {
		return nil, nil
	}
	return queuedWithdrawalJSON{
		Controller:      p.Account,
		Shares:          entry.Shares,
		UnlockTimestamp: entry.UnlockTimestamp,
	}, nil
}
