package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vpsbot/internal/apperr"
	"vpsbot/internal/ledger"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateResource(ctx context.Context, spec Spec) (*Handle, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Handle), args.Error(1)
}

func (m *MockClient) GetStatus(ctx context.Context, h Handle) (State, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(State), args.Error(1)
}

func (m *MockClient) Destroy(ctx context.Context, h Handle) error {
	return m.Called(ctx, h).Error(0)
}

func (m *MockClient) Action(ctx context.Context, h Handle, a Action) error {
	return m.Called(ctx, h, a).Error(0)
}

func newTestService(t *testing.T, balance int64) (*Service, *MockClient, *ledger.MemoryRepository, *MemoryRepository) {
	t.Helper()
	ctx := context.Background()

	lrepo := ledger.NewMemoryRepository()
	_, err := lrepo.Register(ctx, 1, ledger.Profile{Username: "alice"})
	require.NoError(t, err)
	if balance > 0 {
		_, err = lrepo.AdjustBalance(ctx, ledger.Entry{UserID: 1, Amount: balance, Type: ledger.TypeAdjustment})
		require.NoError(t, err)
	}

	client := new(MockClient)
	repo := NewMemoryRepository()
	svc := NewService(lrepo, repo, map[string]Client{"main": client})
	svc.password = func() (string, error) { return "s3cret", nil }
	return svc, client, lrepo, repo
}

var testOrder = Order{Account: "main", Name: "web-1", Region: "sgp1", Size: "s-1vcpu-2gb", Image: "ubuntu-22-04-x64"}

func TestPurchase_Success(t *testing.T) {
	svc, client, lrepo, repo := newTestService(t, 200000)
	ctx := context.Background()

	client.On("CreateResource", mock.Anything, mock.MatchedBy(func(s Spec) bool {
		return s.Name == "web-1" && s.Size == "s-1vcpu-2gb" && s.Region == "sgp1"
	})).Return(&Handle{ResourceID: 42, Name: "web-1", IPv4: "203.0.113.5"}, nil)

	rc, err := svc.Purchase(ctx, 1, testOrder)
	require.NoError(t, err)

	assert.Equal(t, int64(140000), rc.Price)
	assert.Equal(t, int64(60000), rc.Balance)
	assert.Equal(t, "203.0.113.5", rc.IPv4)
	assert.Equal(t, "s3cret", rc.Password)

	rows, _ := repo.ListByUser(ctx, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0].ResourceID)
	assert.Equal(t, "main", rows[0].AccountRef)

	txs, _ := lrepo.ListTransactions(ctx, 1, 10)
	assert.Equal(t, ledger.TypePurchase, txs[0].Type)
	assert.Equal(t, int64(-140000), txs[0].Amount)
	client.AssertExpectations(t)
}

func TestPurchase_InsufficientFundsNeverCreates(t *testing.T) {
	svc, client, _, repo := newTestService(t, 50000)

	_, err := svc.Purchase(context.Background(), 1, testOrder)

	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	client.AssertNotCalled(t, "CreateResource", mock.Anything, mock.Anything)
	rows, _ := repo.ListByUser(context.Background(), 1)
	assert.Empty(t, rows)
}

func TestPurchase_FailureRefunds(t *testing.T) {
	svc, client, lrepo, repo := newTestService(t, 200000)
	ctx := context.Background()

	client.On("CreateResource", mock.Anything, mock.Anything).
		Return(nil, apperr.External("digitalocean", errors.New("region unavailable")))

	_, err := svc.Purchase(ctx, 1, testOrder)
	assert.ErrorIs(t, err, apperr.ErrExternalService)

	u, _ := lrepo.GetUser(ctx, 1)
	assert.Equal(t, int64(200000), u.Balance)

	txs, _ := lrepo.ListTransactions(ctx, 1, 10)
	var types []ledger.TxType
	for _, tx := range txs {
		types = append(types, tx.Type)
	}
	assert.Contains(t, types, ledger.TypePurchase)
	assert.Contains(t, types, ledger.TypeRefund)

	tot, _ := lrepo.Totals(ctx, 1)
	assert.True(t, tot.Consistent())

	rows, _ := repo.ListByUser(ctx, 1)
	assert.Empty(t, rows)
}

func TestPurchase_UnknownAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t, 200000)
	o := testOrder
	o.Account = "other"

	_, err := svc.Purchase(context.Background(), 1, o)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestPurchase_InvalidOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t, 200000)

	_, err := svc.Purchase(context.Background(), 1, Order{Account: "main"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestControl_OwnershipChecked(t *testing.T) {
	svc, client, _, repo := newTestService(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, &Resource{UserID: 1, AccountRef: "main", ResourceID: 42, Name: "web-1"}))

	err := svc.Control(ctx, 2, 42, ActionReboot)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	client.AssertNotCalled(t, "Action", mock.Anything, mock.Anything, mock.Anything)

	client.On("Action", mock.Anything, Handle{AccountRef: "main", ResourceID: 42, Name: "web-1"}, ActionPowerOff).Return(nil)
	require.NoError(t, svc.Control(ctx, 1, 42, ActionPowerOff))
	client.AssertExpectations(t)
}

func TestDestroy_RemovesRecord(t *testing.T) {
	svc, client, _, repo := newTestService(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, &Resource{UserID: 1, AccountRef: "main", ResourceID: 42}))

	assert.ErrorIs(t, svc.Destroy(ctx, 2, 42), ErrNotOwner)

	client.On("Destroy", mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, svc.Destroy(ctx, 1, 42))

	rows, _ := repo.ListByUser(ctx, 1)
	assert.Empty(t, rows)
}

func TestDestroy_ProviderErrorKeepsRecord(t *testing.T) {
	svc, client, _, repo := newTestService(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, &Resource{UserID: 1, AccountRef: "main", ResourceID: 42}))

	client.On("Destroy", mock.Anything, mock.Anything).Return(apperr.External("digitalocean", errors.New("503")))
	assert.Error(t, svc.Destroy(ctx, 1, 42))

	rows, _ := repo.ListByUser(ctx, 1)
	assert.Len(t, rows, 1)
}

func TestServers_StatusFailureIsUnknown(t *testing.T) {
	svc, client, _, repo := newTestService(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, &Resource{UserID: 1, AccountRef: "main", ResourceID: 1, Name: "a"}))
	require.NoError(t, repo.Add(ctx, &Resource{UserID: 1, AccountRef: "main", ResourceID: 2, Name: "b"}))

	client.On("GetStatus", mock.Anything, mock.MatchedBy(func(h Handle) bool { return h.ResourceID == 1 })).
		Return(State{Status: "active", IPv4: "203.0.113.9"}, nil)
	client.On("GetStatus", mock.Anything, mock.MatchedBy(func(h Handle) bool { return h.ResourceID == 2 })).
		Return(State{}, errors.New("timeout"))

	servers, err := svc.Servers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "active", servers[0].State.Status)
	assert.Equal(t, "unknown", servers[1].State.Status)
}

func TestPrice(t *testing.T) {
	assert.Equal(t, int64(70000), Price("s-1vcpu-1gb"))
	assert.Equal(t, int64(560000), Price("s-4vcpu-8gb"))
	assert.Equal(t, DefaultPrice, Price("g-32vcpu-128gb"))

	list := PriceList()
	require.Len(t, list, 5)
	assert.Equal(t, "s-1vcpu-1gb", list[0].Size)
	assert.Equal(t, "s-4vcpu-8gb", list[4].Size)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("power_on")
	require.NoError(t, err)
	assert.Equal(t, ActionPowerOn, a)

	_, err = ParseAction("rebuild")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
