// Package state provides the KV-backed implementation of every native
// module's persistence interface. Records are JSON-encoded over a
// storage.Database so the same store runs against MemDB in tests and LevelDB
// in a node.
package state

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"restakechain/native/delegation"
	"restakechain/native/guardrail"
	"restakechain/native/registry"
	"restakechain/native/token"
	"restakechain/native/vault"
	"restakechain/native/vaultrouter"
	"restakechain/storage"
)

// Store materialises module state on a key-value database.
type Store struct {
	db storage.Database
}

// NewStore wraps the database in a module state store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func addrKey(parts ...[20]byte) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += hex.EncodeToString(p[:])
	}
	return out
}

func (s *Store) putJSON(key string, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), encoded)
}

func (s *Store) getJSON(key string, v interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) getBig(key string) (*big.Int, error) {
	var v big.Int
	ok, err := s.getJSON(key, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) putBig(key string, v *big.Int) error {
	if v == nil {
		v = big.NewInt(0)
	}
	return s.putJSON(key, v)
}

// --- bank.State ---

func (s *Store) BankBalanceGet(addr [20]byte, denom string) (*big.Int, error) {
	return s.getBig("bank/balance/" + addrKey(addr) + "/" + denom)
}

func (s *Store) BankBalanceSet(addr [20]byte, denom string, amount *big.Int) error {
	return s.putBig("bank/balance/"+addrKey(addr)+"/"+denom, amount)
}

// --- token.State ---

func (s *Store) TokenGet(tokenAddr [20]byte) (*token.Token, bool, error) {
	var t token.Token
	ok, err := s.getJSON("token/info/"+addrKey(tokenAddr), &t)
	if err != nil || !ok {
		return nil, false, err
	}
	return &t, true, nil
}

func (s *Store) TokenPut(t *token.Token) error {
	if t == nil {
		return errors.New("state: nil token")
	}
	return s.putJSON("token/info/"+addrKey(t.Address), t)
}

func (s *Store) TokenBalanceGet(tokenAddr, addr [20]byte) (*big.Int, error) {
	return s.getBig("token/balance/" + addrKey(tokenAddr, addr))
}

func (s *Store) TokenBalanceSet(tokenAddr, addr [20]byte, amount *big.Int) error {
	return s.putBig("token/balance/"+addrKey(tokenAddr, addr), amount)
}

func (s *Store) TokenAllowanceGet(tokenAddr, owner, spender [20]byte) (*big.Int, error) {
	return s.getBig("token/allowance/" + addrKey(tokenAddr, owner, spender))
}

func (s *Store) TokenAllowanceSet(tokenAddr, owner, spender [20]byte, amount *big.Int) error {
	return s.putBig("token/allowance/"+addrKey(tokenAddr, owner, spender), amount)
}

// --- vault engine state ---

func (s *Store) VaultGet(addr [20]byte) (*vault.Vault, bool, error) {
	var v vault.Vault
	ok, err := s.getJSON("vault/info/"+addrKey(addr), &v)
	if err != nil || !ok {
		return nil, false, err
	}
	return &v, true, nil
}

func (s *Store) VaultPut(v *vault.Vault) error {
	if v == nil {
		return errors.New("state: nil vault")
	}
	return s.putJSON("vault/info/"+addrKey(v.Address), v)
}

func (s *Store) VaultShareGet(vaultAddr, staker [20]byte) (*big.Int, error) {
	return s.getBig("vault/shares/" + addrKey(vaultAddr, staker))
}

func (s *Store) VaultShareSet(vaultAddr, staker [20]byte, amount *big.Int) error {
	return s.putBig("vault/shares/"+addrKey(vaultAddr, staker), amount)
}

func (s *Store) VaultQueuedGet(vaultAddr, controller [20]byte) (*vault.QueuedWithdrawal, bool, error) {
	var entry vault.QueuedWithdrawal
	ok, err := s.getJSON("vault/queued/"+addrKey(vaultAddr, controller), &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return &entry, true, nil
}

func (s *Store) VaultQueuedPut(vaultAddr [20]byte, entry *vault.QueuedWithdrawal) error {
	if entry == nil {
		return errors.New("state: nil queued withdrawal")
	}
	return s.putJSON("vault/queued/"+addrKey(vaultAddr, entry.Controller), entry)
}

func (s *Store) VaultQueuedRemove(vaultAddr, controller [20]byte) error {
	return s.db.Delete([]byte("vault/queued/" + addrKey(vaultAddr, controller)))
}

func (s *Store) VaultProxyGet(vaultAddr, owner, proxy [20]byte) (bool, error) {
	var approved bool
	ok, err := s.getJSON("vault/proxy/"+addrKey(vaultAddr, owner, proxy), &approved)
	if err != nil || !ok {
		return false, err
	}
	return approved, nil
}

func (s *Store) VaultProxySet(vaultAddr, owner, proxy [20]byte, approved bool) error {
	key := "vault/proxy/" + addrKey(vaultAddr, owner, proxy)
	if !approved {
		return s.db.Delete([]byte(key))
	}
	return s.putJSON(key, approved)
}

// --- registry engine state ---

func (s *Store) RegistryOperatorGet(addr [20]byte) (*registry.Operator, bool, error) {
	var op registry.Operator
	ok, err := s.getJSON("registry/operator/"+addrKey(addr), &op)
	if err != nil || !ok {
		return nil, false, err
	}
	return &op, true, nil
}

func (s *Store) RegistryOperatorPut(op *registry.Operator) error {
	if op == nil {
		return errors.New("state: nil operator")
	}
	return s.putJSON("registry/operator/"+addrKey(op.Address), op)
}

func (s *Store) RegistryServiceGet(addr [20]byte) (*registry.Service, bool, error) {
	var svc registry.Service
	ok, err := s.getJSON("registry/service/"+addrKey(addr), &svc)
	if err != nil || !ok {
		return nil, false, err
	}
	return &svc, true, nil
}

func (s *Store) RegistryServicePut(svc *registry.Service) error {
	if svc == nil {
		return errors.New("state: nil service")
	}
	return s.putJSON("registry/service/"+addrKey(svc.Address), svc)
}

func (s *Store) RegistryStatusHistory(operator, service [20]byte) ([]registry.StatusRecord, error) {
	var history []registry.StatusRecord
	if _, err := s.getJSON("registry/status/"+addrKey(operator, service), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) RegistryStatusAppend(operator, service [20]byte, record registry.StatusRecord) error {
	history, err := s.RegistryStatusHistory(operator, service)
	if err != nil {
		return err
	}
	history = append(history, record)
	return s.putJSON("registry/status/"+addrKey(operator, service), history)
}

func (s *Store) RegistryActiveCountGet(operator [20]byte) (uint64, error) {
	var count uint64
	if _, err := s.getJSON("registry/active_count/"+addrKey(operator), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) RegistryActiveCountSet(operator [20]byte, count uint64) error {
	return s.putJSON("registry/active_count/"+addrKey(operator), count)
}

func (s *Store) RegistrySlashingHistory(service [20]byte) ([]*registry.SlashingParameters, error) {
	var history []*registry.SlashingParameters
	if _, err := s.getJSON("registry/slashing/"+addrKey(service), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) RegistrySlashingAppend(service [20]byte, params *registry.SlashingParameters) error {
	history, err := s.RegistrySlashingHistory(service)
	if err != nil {
		return err
	}
	history = append(history, params)
	return s.putJSON("registry/slashing/"+addrKey(service), history)
}

func (s *Store) RegistryOptInHistory(operator, service [20]byte) ([]registry.OptInRecord, error) {
	var history []registry.OptInRecord
	if _, err := s.getJSON("registry/optin/"+addrKey(operator, service), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) RegistryOptInAppend(operator, service [20]byte, record registry.OptInRecord) error {
	history, err := s.RegistryOptInHistory(operator, service)
	if err != nil {
		return err
	}
	history = append(history, record)
	return s.putJSON("registry/optin/"+addrKey(operator, service), history)
}

// --- guardrail engine state ---

func (s *Store) GuardrailConfigGet() (*guardrail.Config, bool, error) {
	var cfg guardrail.Config
	ok, err := s.getJSON("guardrail/config", &cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (s *Store) GuardrailConfigPut(cfg *guardrail.Config) error {
	if cfg == nil {
		return errors.New("state: nil guardrail config")
	}
	return s.putJSON("guardrail/config", cfg)
}

func idKey(id [32]byte) string { return hex.EncodeToString(id[:]) }

func (s *Store) GuardrailProposalGet(id [32]byte) (*guardrail.Proposal, bool, error) {
	var p guardrail.Proposal
	ok, err := s.getJSON("guardrail/proposal/"+idKey(id), &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

func (s *Store) GuardrailProposalPut(p *guardrail.Proposal) error {
	if p == nil {
		return errors.New("state: nil proposal")
	}
	return s.putJSON("guardrail/proposal/"+idKey(p.SlashingID), p)
}

func (s *Store) GuardrailBallotGet(id [32]byte, voter [20]byte) (*guardrail.Ballot, bool, error) {
	var b guardrail.Ballot
	ok, err := s.getJSON("guardrail/ballot/"+idKey(id)+"/"+addrKey(voter), &b)
	if err != nil || !ok {
		return nil, false, err
	}
	return &b, true, nil
}

func (s *Store) GuardrailBallotPut(id [32]byte, b *guardrail.Ballot) error {
	if b == nil {
		return errors.New("state: nil ballot")
	}
	return s.putJSON("guardrail/ballot/"+idKey(id)+"/"+addrKey(b.Voter), b)
}

// --- vault router engine state ---

type routerVaultRecord struct {
	Whitelisted bool `json:"whitelisted"`
}

func (s *Store) RouterVaultGet(vaultAddr [20]byte) (bool, bool, error) {
	var record routerVaultRecord
	ok, err := s.getJSON("router/vault/"+addrKey(vaultAddr), &record)
	if err != nil || !ok {
		return false, false, err
	}
	return record.Whitelisted, true, nil
}

func (s *Store) RouterVaultSet(vaultAddr [20]byte, whitelisted bool) error {
	if err := s.putJSON("router/vault/"+addrKey(vaultAddr), routerVaultRecord{Whitelisted: whitelisted}); err != nil {
		return err
	}
	list, err := s.RouterVaultList()
	if err != nil {
		return err
	}
	for _, addr := range list {
		if addr == vaultAddr {
			return nil
		}
	}
	list = append(list, vaultAddr)
	sortAddresses(list)
	return s.putAddressList("router/vault_list", list)
}

func (s *Store) RouterVaultList() ([][20]byte, error) {
	return s.getAddressList("router/vault_list")
}

func (s *Store) RouterOperatorVaultsGet(operator [20]byte) ([][20]byte, error) {
	return s.getAddressList("router/operator_vaults/" + addrKey(operator))
}

func (s *Store) RouterOperatorVaultsSet(operator [20]byte, vaults [][20]byte) error {
	return s.putAddressList("router/operator_vaults/"+addrKey(operator), vaults)
}

func (s *Store) RouterLockPeriodGet() (uint64, bool, error) {
	var seconds uint64
	ok, err := s.getJSON("router/lock_period", &seconds)
	if err != nil || !ok {
		return 0, false, err
	}
	return seconds, true, nil
}

func (s *Store) RouterLockPeriodSet(seconds uint64) error {
	return s.putJSON("router/lock_period", seconds)
}

func (s *Store) RouterRequestGet(id [32]byte) (*vaultrouter.SlashingRequest, bool, error) {
	var request vaultrouter.SlashingRequest
	ok, err := s.getJSON("router/request/"+idKey(id), &request)
	if err != nil || !ok {
		return nil, false, err
	}
	return &request, true, nil
}

func (s *Store) RouterRequestPut(request *vaultrouter.SlashingRequest) error {
	if request == nil {
		return errors.New("state: nil slashing request")
	}
	return s.putJSON("router/request/"+idKey(request.ID), request)
}

func (s *Store) RouterActiveRequestGet(service, operator [20]byte) ([32]byte, bool, error) {
	var id [32]byte
	var encoded string
	ok, err := s.getJSON("router/active/"+addrKey(service, operator), &encoded)
	if err != nil || !ok {
		return id, false, err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return id, false, fmt.Errorf("state: corrupt active request index")
	}
	copy(id[:], raw)
	return id, true, nil
}

func (s *Store) RouterActiveRequestSet(service, operator [20]byte, id [32]byte) error {
	return s.putJSON("router/active/"+addrKey(service, operator), hex.EncodeToString(id[:]))
}

func (s *Store) RouterActiveRequestClear(service, operator [20]byte) error {
	return s.db.Delete([]byte("router/active/" + addrKey(service, operator)))
}

// --- delegation engine state ---

func (s *Store) DelegationOperatorGet(addr [20]byte) (*delegation.Operator, bool, error) {
	var op delegation.Operator
	ok, err := s.getJSON("delegation/operator/"+addrKey(addr), &op)
	if err != nil || !ok {
		return nil, false, err
	}
	return &op, true, nil
}

func (s *Store) DelegationOperatorPut(op *delegation.Operator) error {
	if op == nil {
		return errors.New("state: nil delegation operator")
	}
	return s.putJSON("delegation/operator/"+addrKey(op.Address), op)
}

func (s *Store) DelegationDelegatedToGet(staker [20]byte) ([20]byte, bool, error) {
	var out [20]byte
	var encoded string
	ok, err := s.getJSON("delegation/delegated/"+addrKey(staker), &encoded)
	if err != nil || !ok {
		return out, false, err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 20 {
		return out, false, fmt.Errorf("state: corrupt delegation index")
	}
	copy(out[:], raw)
	return out, true, nil
}

func (s *Store) DelegationDelegatedToSet(staker, operator [20]byte) error {
	return s.putJSON("delegation/delegated/"+addrKey(staker), hex.EncodeToString(operator[:]))
}

func (s *Store) DelegationDelegatedToClear(staker [20]byte) error {
	return s.db.Delete([]byte("delegation/delegated/" + addrKey(staker)))
}

func (s *Store) DelegationOperatorSharesGet(operator, strategy [20]byte) (*big.Int, error) {
	return s.getBig("delegation/operator_shares/" + addrKey(operator, strategy))
}

func (s *Store) DelegationOperatorSharesSet(operator, strategy [20]byte, shares *big.Int) error {
	return s.putBig("delegation/operator_shares/"+addrKey(operator, strategy), shares)
}

func (s *Store) DelegationNonceGet(staker [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := s.getJSON("delegation/nonce/"+addrKey(staker), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (s *Store) DelegationNonceSet(staker [20]byte, nonce uint64) error {
	return s.putJSON("delegation/nonce/"+addrKey(staker), nonce)
}

func (s *Store) DelegationWithdrawalGet(root [32]byte) (*delegation.Withdrawal, bool, error) {
	var w delegation.Withdrawal
	ok, err := s.getJSON("delegation/withdrawal/"+idKey(root), &w)
	if err != nil || !ok {
		return nil, false, err
	}
	return &w, true, nil
}

func (s *Store) DelegationWithdrawalPut(root [32]byte, w *delegation.Withdrawal) error {
	if w == nil {
		return errors.New("state: nil withdrawal")
	}
	return s.putJSON("delegation/withdrawal/"+idKey(root), w)
}

func (s *Store) DelegationWithdrawalRemove(root [32]byte) error {
	return s.db.Delete([]byte("delegation/withdrawal/" + idKey(root)))
}

func (s *Store) DelegationMinDelayGet() (uint64, bool, error) {
	var blocks uint64
	ok, err := s.getJSON("delegation/min_delay", &blocks)
	if err != nil || !ok {
		return 0, false, err
	}
	return blocks, true, nil
}

func (s *Store) DelegationMinDelaySet(blocks uint64) error {
	return s.putJSON("delegation/min_delay", blocks)
}

// --- strategy manager state ---

func (s *Store) StrategyGet(addr [20]byte) (*delegation.Strategy, bool, error) {
	var strategy delegation.Strategy
	ok, err := s.getJSON("strategy/info/"+addrKey(addr), &strategy)
	if err != nil || !ok {
		return nil, false, err
	}
	return &strategy, true, nil
}

func (s *Store) StrategyPut(strategy *delegation.Strategy) error {
	if strategy == nil {
		return errors.New("state: nil strategy")
	}
	return s.putJSON("strategy/info/"+addrKey(strategy.Address), strategy)
}

func (s *Store) StrategyStakerSharesGet(staker, strategy [20]byte) (*big.Int, error) {
	return s.getBig("strategy/shares/" + addrKey(staker, strategy))
}

func (s *Store) StrategyStakerSharesSet(staker, strategy [20]byte, shares *big.Int) error {
	return s.putBig("strategy/shares/"+addrKey(staker, strategy), shares)
}

func (s *Store) StrategyStakerListGet(staker [20]byte) ([][20]byte, error) {
	return s.getAddressList("strategy/staker_list/" + addrKey(staker))
}

func (s *Store) StrategyStakerListSet(staker [20]byte, strategies [][20]byte) error {
	return s.putAddressList("strategy/staker_list/"+addrKey(staker), strategies)
}

// --- helpers ---

func (s *Store) getAddressList(key string) ([][20]byte, error) {
	var encoded []string
	if _, err := s.getJSON(key, &encoded); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(encoded))
	for _, item := range encoded {
		raw, err := hex.DecodeString(item)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("state: corrupt address list %s", key)
		}
		var addr [20]byte
		copy(addr[:], raw)
		out = append(out, addr)
	}
	return out, nil
}

func (s *Store) putAddressList(key string, addrs [][20]byte) error {
	encoded := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		encoded = append(encoded, hex.EncodeToString(addr[:]))
	}
	return s.putJSON(key, encoded)
}

func sortAddresses(addrs [][20]byte) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
