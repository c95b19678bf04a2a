package vault

import (
	"errors"
	"math/big"
	"testing"

	"restakechain/core/events"
	"restakechain/native/bank"
	"restakechain/native/token"
)

type shareKey struct {
	vault  [20]byte
	staker [20]byte
}

type proxyKey struct {
	vault [20]byte
	owner [20]byte
	proxy [20]byte
}

type balanceKey struct {
	addr  [20]byte
	denom string
}

type tokenBalanceKey struct {
	token [20]byte
	addr  [20]byte
}

type allowanceKey struct {
	token   [20]byte
	owner   [20]byte
	spender [20]byte
}

type mockState struct {
	vaults     map[[20]byte]*Vault
	shares     map[shareKey]*big.Int
	queued     map[shareKey]*QueuedWithdrawal
	proxies    map[proxyKey]bool
	balances   map[balanceKey]*big.Int
	tokens     map[[20]byte]*token.Token
	tokenBals  map[tokenBalanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		vaults:     make(map[[20]byte]*Vault),
		shares:     make(map[shareKey]*big.Int),
		queued:     make(map[shareKey]*QueuedWithdrawal),
		proxies:    make(map[proxyKey]bool),
		balances:   make(map[balanceKey]*big.Int),
		tokens:     make(map[[20]byte]*token.Token),
		tokenBals:  make(map[tokenBalanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *mockState) VaultGet(addr [20]byte) (*Vault, bool, error) {
	v, ok := m.vaults[addr]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) VaultPut(v *Vault) error {
	m.vaults[v.Address] = v.Clone()
	return nil
}

func (m *mockState) VaultShareGet(vault, staker [20]byte) (*big.Int, error) {
	s, ok := m.shares[shareKey{vault, staker}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(s), nil
}

func (m *mockState) VaultShareSet(vault, staker [20]byte, amount *big.Int) error {
	m.shares[shareKey{vault, staker}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) VaultQueuedGet(vault, controller [20]byte) (*QueuedWithdrawal, bool, error) {
	entry, ok := m.queued[shareKey{vault, controller}]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

func (m *mockState) VaultQueuedPut(vault [20]byte, entry *QueuedWithdrawal) error {
	m.queued[shareKey{vault, entry.Controller}] = entry.Clone()
	return nil
}

func (m *mockState) VaultQueuedRemove(vault, controller [20]byte) error {
	delete(m.queued, shareKey{vault, controller})
	return nil
}

func (m *mockState) VaultProxyGet(vault, owner, proxy [20]byte) (bool, error) {
	return m.proxies[proxyKey{vault, owner, proxy}], nil
}

func (m *mockState) VaultProxySet(vault, owner, proxy [20]byte, approved bool) error {
	if approved {
		m.proxies[proxyKey{vault, owner, proxy}] = true
	} else {
		delete(m.proxies, proxyKey{vault, owner, proxy})
	}
	return nil
}

func (m *mockState) BankBalanceGet(addr [20]byte, denom string) (*big.Int, error) {
	b, ok := m.balances[balanceKey{addr, denom}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(b), nil
}

func (m *mockState) BankBalanceSet(addr [20]byte, denom string, amount *big.Int) error {
	m.balances[balanceKey{addr, denom}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenGet(addr [20]byte) (*token.Token, bool, error) {
	t, ok := m.tokens[addr]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockState) TokenPut(t *token.Token) error {
	m.tokens[t.Address] = t.Clone()
	return nil
}

func (m *mockState) TokenBalanceGet(tokenAddr, addr [20]byte) (*big.Int, error) {
	b, ok := m.tokenBals[tokenBalanceKey{tokenAddr, addr}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(b), nil
}

func (m *mockState) TokenBalanceSet(tokenAddr, addr [20]byte, amount *big.Int) error {
	m.tokenBals[tokenBalanceKey{tokenAddr, addr}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowanceGet(tokenAddr, owner, spender [20]byte) (*big.Int, error) {
	a, ok := m.allowances[allowanceKey{tokenAddr, owner, spender}]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(a), nil
}

func (m *mockState) TokenAllowanceSet(tokenAddr, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[allowanceKey{tokenAddr, owner, spender}] = new(big.Int).Set(amount)
	return nil
}

type mockRouter struct {
	whitelisted map[[20]byte]bool
	lockPeriod  uint64
	account     [20]byte
}

func (m *mockRouter) IsWhitelisted(vault [20]byte) bool { return m.whitelisted[vault] }
func (m *mockRouter) WithdrawalLockPeriod() uint64      { return m.lockPeriod }
func (m *mockRouter) Account() [20]byte                 { return m.account }

type mockRegistry struct {
	active map[[20]byte]bool
}

func (m *mockRegistry) IsOperatorActive(operator [20]byte) bool { return m.active[operator] }

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(e events.Event) { c.events = append(c.events, e) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type fixture struct {
	engine   *Engine
	state    *mockState
	bank     *bank.Ledger
	tokens   *token.Ledger
	router   *mockRouter
	registry *mockRegistry
	emitter  *captureEmitter
	now      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMockState()
	f := &fixture{
		engine:   NewEngine(),
		state:    state,
		bank:     bank.NewLedger(state),
		tokens:   token.NewLedger(state),
		router:   &mockRouter{whitelisted: make(map[[20]byte]bool), lockPeriod: 100, account: newTestAddress(0xEE)},
		registry: &mockRegistry{active: make(map[[20]byte]bool)},
		emitter:  &captureEmitter{},
		now:      1_700_000_000,
	}
	f.engine.SetState(state)
	f.engine.SetLedgers(f.bank, f.tokens)
	f.engine.SetRouter(f.router)
	f.engine.SetRegistry(f.registry)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return f.now })
	return f
}

func (f *fixture) fund(t *testing.T, addr [20]byte, denom string, amount int64) {
	t.Helper()
	if err := f.bank.Mint(addr, denom, big.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, addr [20]byte, denom string) int64 {
	t.Helper()
	b, err := f.bank.BalanceOf(addr, denom)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Int64()
}

func TestDepositQueueRedeemLifecycle(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)

	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, staker, "urst", 1_000_000)

	shares, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Int64() != 1_000_000 {
		t.Fatalf("expected 1:1 share mint, got %s", shares)
	}
	stored, err := f.engine.Get(v.Address)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if stored.TotalShares.Int64() != 1_000_000 {
		t.Fatalf("unexpected total shares %s", stored.TotalShares)
	}

	if _, err := f.engine.QueueWithdrawal(staker, v.Address, staker, staker, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("queue withdrawal: %v", err)
	}

	// Redeem before the lock elapses is rejected with the unlock timestamp.
	f.now += 50
	_, err = f.engine.RedeemWithdrawal(staker, v.Address, staker, staker)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) || locked.UnlockTimestamp != 1_700_000_100 {
		t.Fatalf("unexpected locked error payload: %v", err)
	}

	f.now += 65
	assets, err := f.engine.RedeemWithdrawal(staker, v.Address, staker, staker)
	if err != nil {
		t.Fatalf("redeem withdrawal: %v", err)
	}
	if assets.Int64() != 1_000_000 {
		t.Fatalf("expected full redemption, got %s", assets)
	}
	if got := f.balance(t, staker, "urst"); got != 1_000_000 {
		t.Fatalf("staker balance should be restored, got %d", got)
	}
	stored, err = f.engine.Get(v.Address)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if stored.TotalShares.Sign() != 0 {
		t.Fatalf("total shares should be zero, got %s", stored.TotalShares)
	}
}

func TestDepositRequiresWhitelist(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.fund(t, staker, "urst", 1000)
	if _, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(1000)); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("expected ErrNotWhitelisted, got %v", err)
	}
}

func TestDepositZeroSharesRejected(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	attacker := newTestAddress(0x03)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, attacker, "urst", 10_000_000)
	f.fund(t, staker, "urst", 1)

	if _, err := f.engine.Deposit(attacker, v.Address, attacker, big.NewInt(1)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	// A large donation pushes the rate far enough that one asset mints zero
	// shares; the deposit must fail instead of being absorbed.
	if err := f.bank.Transfer(attacker, v.Address, "urst", big.NewInt(5_000_000)); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(1)); !errors.Is(err, ErrZeroShares) {
		t.Fatalf("expected ErrZeroShares, got %v", err)
	}
}

func TestDonationAbsorbedByOffset(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	attacker := newTestAddress(0x03)
	honest := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, attacker, "urst", 1000)
	f.fund(t, honest, "urst", 10_000)

	if _, err := f.engine.Deposit(attacker, v.Address, attacker, big.NewInt(1)); err != nil {
		t.Fatalf("attacker deposit: %v", err)
	}
	if err := f.bank.Transfer(attacker, v.Address, "urst", big.NewInt(999)); err != nil {
		t.Fatalf("donate: %v", err)
	}
	shares, err := f.engine.Deposit(honest, v.Address, honest, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("honest deposit: %v", err)
	}
	if shares.Int64() != 5005 {
		t.Fatalf("expected 5005 shares, got %s", shares)
	}
	attackerShares, err := f.engine.SharesOf(v.Address, attacker)
	if err != nil {
		t.Fatalf("shares of: %v", err)
	}
	rate, err := f.engine.exchange(mustVault(t, f, v.Address))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	value, err := rate.SharesToAssets(attackerShares)
	if err != nil {
		t.Fatalf("shares to assets: %v", err)
	}
	if value.Int64() != 1 {
		t.Fatalf("attacker position should be worth 1, got %s", value)
	}
}

func mustVault(t *testing.T, f *fixture, addr [20]byte) *Vault {
	t.Helper()
	v, ok, err := f.state.VaultGet(addr)
	if err != nil || !ok {
		t.Fatalf("vault not found")
	}
	return v
}

func TestConcurrentQueuesResetLock(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, staker, "urst", 30_000)
	if _, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(30_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	start := f.now
	entry, err := f.engine.QueueWithdrawal(staker, v.Address, staker, staker, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("queue 1: %v", err)
	}
	if entry.UnlockTimestamp != start+100 {
		t.Fatalf("unexpected unlock %d", entry.UnlockTimestamp)
	}

	f.now = start + 101
	entry, err = f.engine.QueueWithdrawal(staker, v.Address, staker, staker, big.NewInt(20_000))
	if err != nil {
		t.Fatalf("queue 2: %v", err)
	}
	if entry.UnlockTimestamp != start+201 {
		t.Fatalf("latest queue must defer the whole batch, got %d", entry.UnlockTimestamp)
	}
	if entry.Shares.Int64() != 30_000 {
		t.Fatalf("queued shares should accumulate, got %s", entry.Shares)
	}

	f.now = start + 150
	if _, err := f.engine.RedeemWithdrawal(staker, v.Address, staker, staker); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	f.now = start + 202
	assets, err := f.engine.RedeemWithdrawal(staker, v.Address, staker, staker)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if assets.Int64() != 30_000 {
		t.Fatalf("expected 30000 assets, got %s", assets)
	}
}

func TestProxyCanQueueButCannotGrief(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	o1 := newTestAddress(0x02)
	o2 := newTestAddress(0x03)
	proxy := newTestAddress(0x04)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, o1, "urst", 10_000)
	f.fund(t, o2, "urst", 10_000)
	if _, err := f.engine.Deposit(o1, v.Address, o1, big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit o1: %v", err)
	}
	if _, err := f.engine.Deposit(o2, v.Address, o2, big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit o2: %v", err)
	}

	if err := f.engine.SetApproveProxy(o1, v.Address, proxy, true); err != nil {
		t.Fatalf("approve proxy: %v", err)
	}
	if _, err := f.engine.QueueWithdrawal(proxy, v.Address, o1, o1, big.NewInt(1_000)); err != nil {
		t.Fatalf("approved proxy should queue: %v", err)
	}
	before, ok, err := f.state.VaultQueuedGet(v.Address, o1)
	if err != nil || !ok {
		t.Fatalf("queue entry missing")
	}

	// O2 never approved the proxy for controller O1: the queue attempt must
	// fail on the controller leg and leave O1's unlock untouched.
	if _, err := f.engine.QueueWithdrawal(o2, v.Address, o2, o1, big.NewInt(1_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	after, ok, err := f.state.VaultQueuedGet(v.Address, o1)
	if err != nil || !ok {
		t.Fatalf("queue entry missing after grief attempt")
	}
	if after.UnlockTimestamp != before.UnlockTimestamp || after.Shares.Cmp(before.Shares) != 0 {
		t.Fatalf("controller queue entry must be unchanged")
	}

	// The owner leg is checked too: the proxy cannot move O2's shares.
	if _, err := f.engine.QueueWithdrawal(proxy, v.Address, o2, o1, big.NewInt(1_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign owner, got %v", err)
	}
}

func TestWithdrawBlockedWhileValidating(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, staker, "urst", 5_000)
	if _, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(5_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f.registry.active[operator] = true
	if _, err := f.engine.Withdraw(staker, v.Address, staker, big.NewInt(5_000)); !errors.Is(err, ErrOperatorValidating) {
		t.Fatalf("expected ErrOperatorValidating, got %v", err)
	}

	f.registry.active[operator] = false
	assets, err := f.engine.Withdraw(staker, v.Address, staker, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if assets.Int64() != 5_000 {
		t.Fatalf("expected 5000 assets, got %s", assets)
	}
}

func TestSlashLockedOnlyRouter(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, staker, "urst", 100_000)
	if _, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(100_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := f.engine.SlashLocked(staker, v.Address, big.NewInt(5_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SlashLocked(f.router.account, v.Address, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.SlashLocked(f.router.account, v.Address, big.NewInt(5_000)); err != nil {
		t.Fatalf("slash locked: %v", err)
	}
	if got := f.balance(t, f.router.account, "urst"); got != 5_000 {
		t.Fatalf("router custody should hold 5000, got %d", got)
	}
	stored, err := f.engine.Get(v.Address)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if stored.TotalShares.Int64() != 100_000 {
		t.Fatalf("slash must not change total shares, got %s", stored.TotalShares)
	}
}

func TestTokenizedVaultLifecycle(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	staker := newTestAddress(0x02)
	v, err := f.engine.CreateTokenizedBankVault(operator, "urst", "rRST")
	if err != nil {
		t.Fatalf("create tokenized vault: %v", err)
	}
	if !v.Tokenized() {
		t.Fatalf("vault should be tokenized")
	}
	f.router.whitelisted[v.Address] = true
	f.fund(t, staker, "urst", 10_000)

	shares, err := f.engine.Deposit(staker, v.Address, staker, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	receiptBalance, err := f.tokens.BalanceOf(v.ReceiptToken, staker)
	if err != nil {
		t.Fatalf("receipt balance: %v", err)
	}
	if receiptBalance.Cmp(shares) != 0 {
		t.Fatalf("receipt balance %s should equal minted shares %s", receiptBalance, shares)
	}

	// Receipt tokens transfer like any fungible token.
	other := newTestAddress(0x05)
	if err := f.tokens.Transfer(v.ReceiptToken, staker, other, big.NewInt(4_000)); err != nil {
		t.Fatalf("receipt transfer: %v", err)
	}

	// Direct withdraw is not available on tokenized vaults.
	if _, err := f.engine.Withdraw(staker, v.Address, staker, big.NewInt(1_000)); !errors.Is(err, ErrTokenizedWithdraw) {
		t.Fatalf("expected ErrTokenizedWithdraw, got %v", err)
	}

	// Queueing parks receipt tokens in the vault account without touching
	// the supply, so the exchange rate holds.
	if _, err := f.engine.QueueWithdrawal(other, v.Address, other, other, big.NewInt(4_000)); err != nil {
		t.Fatalf("queue: %v", err)
	}
	supply, err := f.tokens.TotalSupply(v.ReceiptToken)
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply.Int64() != 10_000 {
		t.Fatalf("queueing must not change supply, got %s", supply)
	}
	vaultHeld, err := f.tokens.BalanceOf(v.ReceiptToken, v.Address)
	if err != nil {
		t.Fatalf("vault receipt balance: %v", err)
	}
	circulating := new(big.Int).Sub(supply, vaultHeld)
	if circulating.Int64() != 6_000 {
		t.Fatalf("expected 6000 circulating receipt tokens, got %s", circulating)
	}

	f.now += 100
	assets, err := f.engine.RedeemWithdrawal(other, v.Address, other, other)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if assets.Int64() != 4_000 {
		t.Fatalf("expected 4000 assets, got %s", assets)
	}
	supply, err = f.tokens.TotalSupply(v.ReceiptToken)
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply.Int64() != 6_000 {
		t.Fatalf("redeem burns the queued receipts, got %s", supply)
	}

	// Mint and burn stay vault-gated.
	if err := f.tokens.Mint(v.ReceiptToken, staker, staker, big.NewInt(1)); !errors.Is(err, token.ErrUnauthorizedMinter) {
		t.Fatalf("expected ErrUnauthorizedMinter, got %v", err)
	}
}

func TestVaultInfoRoundTrip(t *testing.T) {
	f := newFixture(t)
	operator := newTestAddress(0x01)
	v, err := f.engine.CreateBankVault(operator, "urst")
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	info, err := f.engine.Info(v.Address)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.AssetType != "Bank" || info.AssetReference != "urst" {
		t.Fatalf("unexpected asset fields: %+v", info)
	}
	if err := AssetID(info.AssetID).Validate(); err != nil {
		t.Fatalf("info asset id should validate: %v", err)
	}
	if info.Version != ContractVersion {
		t.Fatalf("unexpected version %q", info.Version)
	}
}
