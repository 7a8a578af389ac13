package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	channelapp "github.com/marketrelay/backend/internal/application/channel"
	commissionapp "github.com/marketrelay/backend/internal/application/commission"
	relayapp "github.com/marketrelay/backend/internal/application/relay"
	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// MockRelayService implements RelayService for testing
type MockRelayService struct {
	mock.Mock
}

func (m *MockRelayService) relayResult(args mock.Arguments) (*relay.OrderRelay, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.OrderRelay), args.Error(1)
}

func (m *MockRelayService) Ingest(ctx context.Context, cmd relayapp.IngestCommand) (*relay.OrderRelay, bool, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*relay.OrderRelay), args.Bool(1), args.Error(2)
}

func (m *MockRelayService) Get(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id))
}

func (m *MockRelayService) List(ctx context.Context, tenantID uuid.UUID, filter relay.Filter) ([]relay.OrderRelay, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]relay.OrderRelay), args.Get(1).(int64), args.Error(2)
}

func (m *MockRelayService) Dispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id))
}

func (m *MockRelayService) Acknowledge(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id))
}

func (m *MockRelayService) MarkFulfilled(ctx context.Context, tenantID, id uuid.UUID, tracking relay.TrackingInfo) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id, tracking))
}

func (m *MockRelayService) MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id, reason))
}

func (m *MockRelayService) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id, reason))
}

func (m *MockRelayService) ResetForRedispatch(ctx context.Context, tenantID, id uuid.UUID) (*relay.OrderRelay, error) {
	return m.relayResult(m.Called(ctx, tenantID, id))
}

// MockCommissionService implements CommissionService for testing
type MockCommissionService struct {
	mock.Mock
}

func (m *MockCommissionService) ComputeForConversion(ctx context.Context, event commission.ConversionEvent, policyID string) (*commission.Commission, bool, error) {
	args := m.Called(ctx, event, policyID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*commission.Commission), args.Bool(1), args.Error(2)
}

func (m *MockCommissionService) Get(ctx context.Context, tenantID, id uuid.UUID) (*commission.Commission, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Commission), args.Error(1)
}

func (m *MockCommissionService) GetByConversionID(ctx context.Context, tenantID uuid.UUID, conversionID string) (*commission.Commission, error) {
	args := m.Called(ctx, tenantID, conversionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Commission), args.Error(1)
}

func (m *MockCommissionService) List(ctx context.Context, tenantID uuid.UUID, filter commission.Filter) ([]commission.Commission, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]commission.Commission), args.Get(1).(int64), args.Error(2)
}

func (m *MockCommissionService) CancelForOrder(ctx context.Context, tenantID, orderID uuid.UUID, reason string) (*commissionapp.CancelResult, error) {
	args := m.Called(ctx, tenantID, orderID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commissionapp.CancelResult), args.Error(1)
}

func (m *MockCommissionService) SweepHoldExpired(ctx context.Context) (commissionapp.SweepSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(commissionapp.SweepSummary), args.Error(1)
}

// MockSettlementService implements SettlementService for testing
type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) batchResult(args mock.Arguments) (*settlement.SettlementBatch, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SettlementBatch), args.Error(1)
}

func (m *MockSettlementService) OpenBatch(ctx context.Context, cmd settlementapp.OpenBatchCommand) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, cmd))
}

func (m *MockSettlementService) Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id))
}

func (m *MockSettlementService) List(ctx context.Context, tenantID uuid.UUID, filter settlement.Filter) ([]settlement.SettlementBatch, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]settlement.SettlementBatch), args.Get(1).(int64), args.Error(2)
}

func (m *MockSettlementService) ListCommissions(ctx context.Context, tenantID, id uuid.UUID) ([]commission.Commission, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]commission.Commission), args.Error(1)
}

func (m *MockSettlementService) CloseBatch(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id))
}

func (m *MockSettlementService) StartProcessing(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id))
}

func (m *MockSettlementService) MarkPaid(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id))
}

func (m *MockSettlementService) MarkFailed(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id, reason))
}

func (m *MockSettlementService) CancelBatch(ctx context.Context, tenantID, id uuid.UUID, reason string) (*settlement.SettlementBatch, error) {
	return m.batchResult(m.Called(ctx, tenantID, id, reason))
}

// MockStatementLinker implements StatementLinker for testing
type MockStatementLinker struct {
	mock.Mock
}

func (m *MockStatementLinker) DownloadURL(ctx context.Context, tenantID, batchID uuid.UUID, expiresIn time.Duration) (string, time.Time, error) {
	args := m.Called(ctx, tenantID, batchID, expiresIn)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// MockChannelService implements ChannelService for testing
type MockChannelService struct {
	mock.Mock
}

func (m *MockChannelService) ListChannels() []channel.Metadata {
	return m.Called().Get(0).([]channel.Metadata)
}

func (m *MockChannelService) accountResult(args mock.Arguments) (*channel.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.Account), args.Error(1)
}

func (m *MockChannelService) CreateAccount(ctx context.Context, cmd channelapp.CreateAccountCommand) (*channel.Account, error) {
	return m.accountResult(m.Called(ctx, cmd))
}

func (m *MockChannelService) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*channel.Account, error) {
	return m.accountResult(m.Called(ctx, tenantID, id))
}

func (m *MockChannelService) ListAccounts(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]channel.Account, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]channel.Account), args.Get(1).(int64), args.Error(2)
}

func (m *MockChannelService) SetAccountEnabled(ctx context.Context, tenantID, id uuid.UUID, enabled bool) (*channel.Account, error) {
	return m.accountResult(m.Called(ctx, tenantID, id, enabled))
}

func (m *MockChannelService) ValidateCredentials(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockChannelService) CreateListing(ctx context.Context, cmd channelapp.CreateListingCommand) (*channel.ListingLink, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.ListingLink), args.Error(1)
}

func (m *MockChannelService) ListListings(ctx context.Context, tenantID, accountID uuid.UUID) ([]channel.ListingLink, error) {
	args := m.Called(ctx, tenantID, accountID)
	return args.Get(0).([]channel.ListingLink), args.Error(1)
}

func (m *MockChannelService) ExportListings(ctx context.Context, tenantID, accountID uuid.UUID, linkIDs []uuid.UUID) (*channel.ExportResult, error) {
	args := m.Called(ctx, tenantID, accountID, linkIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channel.ExportResult), args.Error(1)
}

func (m *MockChannelService) PollOrders(ctx context.Context, tenantID, accountID uuid.UUID) (*channelapp.PollSummary, error) {
	args := m.Called(ctx, tenantID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*channelapp.PollSummary), args.Error(1)
}

var (
	_ RelayService      = (*MockRelayService)(nil)
	_ CommissionService = (*MockCommissionService)(nil)
	_ SettlementService = (*MockSettlementService)(nil)
	_ ChannelService    = (*MockChannelService)(nil)
	_ StatementLinker   = (*MockStatementLinker)(nil)
)
