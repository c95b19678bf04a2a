package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"restakechain/native/registry"
	"restakechain/native/vault"
	"restakechain/native/vaultrouter"
	"restakechain/storage"
)

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestBankBalanceRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	addr := testAddr(0x01)

	balance, err := store.BankBalanceGet(addr, "urst")
	require.NoError(t, err)
	require.Nil(t, balance)

	require.NoError(t, store.BankBalanceSet(addr, "urst", big.NewInt(12345)))
	balance, err = store.BankBalanceGet(addr, "urst")
	require.NoError(t, err)
	require.Equal(t, int64(12345), balance.Int64())
}

func TestVaultRecordRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	v := &vault.Vault{
		Address:     testAddr(0x01),
		Operator:    testAddr(0x02),
		AssetType:   vault.AssetTypeBank,
		AssetDenom:  "urst",
		TotalShares: big.NewInt(777),
		CreatedAt:   1_700_000_000,
	}
	require.NoError(t, store.VaultPut(v))

	loaded, ok, err := store.VaultGet(v.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, v.Operator, loaded.Operator)
	require.Equal(t, v.AssetDenom, loaded.AssetDenom)
	require.Equal(t, int64(777), loaded.TotalShares.Int64())

	_, ok, err = store.VaultGet(testAddr(0x09))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueuedWithdrawalLifecycle(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	vaultAddr := testAddr(0x01)
	controller := testAddr(0x02)
	entry := &vault.QueuedWithdrawal{
		Controller:      controller,
		Shares:          big.NewInt(500),
		UnlockTimestamp: 1_700_000_100,
	}
	require.NoError(t, store.VaultQueuedPut(vaultAddr, entry))

	loaded, ok, err := store.VaultQueuedGet(vaultAddr, controller)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(500), loaded.Shares.Int64())
	require.Equal(t, int64(1_700_000_100), loaded.UnlockTimestamp)

	require.NoError(t, store.VaultQueuedRemove(vaultAddr, controller))
	_, ok, err = store.VaultQueuedGet(vaultAddr, controller)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryHistoryAppendsInOrder(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	operator := testAddr(0x01)
	service := testAddr(0x02)

	for i, status := range []registry.RegistrationStatus{
		registry.StatusOperatorRegistered,
		registry.StatusActive,
		registry.StatusInactive,
	} {
		require.NoError(t, store.RegistryStatusAppend(operator, service, registry.StatusRecord{
			Height: uint64(100 + i),
			Time:   int64(1_700_000_000 + i),
			Status: status,
		}))
	}
	history, err := store.RegistryStatusHistory(operator, service)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, registry.StatusActive, history[1].Status)
	require.Equal(t, uint64(101), history[1].Height)
}

func TestRouterVaultListSorted(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	require.NoError(t, store.RouterVaultSet(testAddr(0x03), true))
	require.NoError(t, store.RouterVaultSet(testAddr(0x01), true))
	require.NoError(t, store.RouterVaultSet(testAddr(0x02), false))

	list, err := store.RouterVaultList()
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, testAddr(0x01), list[0])
	require.Equal(t, testAddr(0x02), list[1])
	require.Equal(t, testAddr(0x03), list[2])

	// Re-whitelisting must not duplicate the entry.
	require.NoError(t, store.RouterVaultSet(testAddr(0x01), true))
	list, err = store.RouterVaultList()
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestSlashingRequestRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	service := testAddr(0x01)
	operator := testAddr(0x02)
	id := vaultrouter.ComputeRequestID(service, operator, 500, 1_700_000_000, "reason")

	request := &vaultrouter.SlashingRequest{
		ID:                 id,
		Service:            service,
		Operator:           operator,
		Bips:               500,
		InfractionTime:     1_700_000_000,
		Metadata:           "reason",
		RequestTime:        1_700_000_050,
		ResolutionDeadline: 1_700_003_650,
		Stage:              vaultrouter.StageLocked,
		Locked: []vaultrouter.VaultLock{
			{Vault: testAddr(0x05), Amount: big.NewInt(5_000_000)},
		},
	}
	require.NoError(t, store.RouterRequestPut(request))

	loaded, ok, err := store.RouterRequestGet(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vaultrouter.StageLocked, loaded.Stage)
	require.Equal(t, int64(5_000_000), loaded.LockedTotal().Int64())

	require.NoError(t, store.RouterActiveRequestSet(service, operator, id))
	activeID, ok, err := store.RouterActiveRequestGet(service, operator)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, activeID)

	require.NoError(t, store.RouterActiveRequestClear(service, operator))
	_, ok, err = store.RouterActiveRequestGet(service, operator)
	require.NoError(t, err)
	require.False(t, ok)
}
