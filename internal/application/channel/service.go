package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	relayapp "github.com/marketrelay/backend/internal/application/relay"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/relay"
	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RelayIngester is the part of the relay service the poller needs
type RelayIngester interface {
	Ingest(ctx context.Context, cmd relayapp.IngestCommand) (*relay.OrderRelay, bool, error)
}

// Config holds the channel service settings
type Config struct {
	// PageSize is the requested import page size, clamped per connector
	PageSize int
	// MaxPagesPerPoll bounds one poll; a resume cursor carries the rest to the next poll
	MaxPagesPerPoll int
}

// CreateAccountCommand creates a channel account
type CreateAccountCommand struct {
	TenantID    uuid.UUID
	SellerID    uuid.UUID
	SupplierID  uuid.UUID
	ChannelCode string
	Name        string
	Credentials map[string]string
	CreatedBy   *uuid.UUID
}

// CreateListingCommand links a product to a channel account
type CreateListingCommand struct {
	TenantID    uuid.UUID
	AccountID   uuid.UUID
	ProductID   uuid.UUID
	SKU         string
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Quantity    int
	ImageURLs   []string
	Tags        []string
}

// PollSummary reports one order poll of an account
type PollSummary struct {
	AccountID  uuid.UUID  `json:"account_id"`
	Pages      int        `json:"pages"`
	Imported   int        `json:"imported"`
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Rejected   int        `json:"rejected"`
	Watermark  *time.Time `json:"watermark,omitempty"`
	// Resumed is set when the poll stopped at the page cap and the next
	// one continues from the saved cursor
	Resumed bool `json:"resumed,omitempty"`
}

// Service manages channel accounts, listing exports and order polling
type Service struct {
	accountRepo channel.AccountRepository
	linkRepo    channel.ListingLinkRepository
	registry    channel.Registry
	ingester    RelayIngester
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new channel Service
func NewService(
	accountRepo channel.AccountRepository,
	linkRepo channel.ListingLinkRepository,
	registry channel.Registry,
	ingester RelayIngester,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPagesPerPoll <= 0 {
		cfg.MaxPagesPerPoll = 20
	}
	return &Service{
		accountRepo: accountRepo,
		linkRepo:    linkRepo,
		registry:    registry,
		ingester:    ingester,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListChannels returns the metadata of every registered connector
func (s *Service) ListChannels() []channel.Metadata {
	connectors := s.registry.List()
	out := make([]channel.Metadata, len(connectors))
	for i, c := range connectors {
		out[i] = c.Metadata()
	}
	return out
}

// CreateAccount registers a seller's account on a channel. The channel must
// have a registered connector.
func (s *Service) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (*channel.Account, error) {
	code := channel.NormalizeCode(cmd.ChannelCode)
	if _, err := s.registry.Get(code); err != nil {
		if errors.Is(err, channel.ErrConnectorNotFound) {
			return nil, shared.NewDomainError("INVALID_CHANNEL_CODE", fmt.Sprintf("No connector registered for channel %s", code))
		}
		return nil, err
	}

	account, err := channel.NewAccount(cmd.TenantID, cmd.SellerID, cmd.SupplierID, code, cmd.Name, cmd.Credentials)
	if err != nil {
		return nil, err
	}
	if cmd.CreatedBy != nil {
		account.SetCreatedBy(*cmd.CreatedBy)
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("channel account created",
		zap.String("tenant_id", account.TenantID.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("channel_code", code.String()),
	)
	return account, nil
}

// GetAccount returns an account by id
func (s *Service) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*channel.Account, error) {
	return s.accountRepo.FindByID(ctx, tenantID, id)
}

// ListAccounts lists a tenant's accounts
func (s *Service) ListAccounts(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]channel.Account, int64, error) {
	return s.accountRepo.FindAll(ctx, tenantID, filter)
}

// SetAccountEnabled enables or disables polling and exports for an account
func (s *Service) SetAccountEnabled(ctx context.Context, tenantID, id uuid.UUID, enabled bool) (*channel.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if enabled {
		account.Enable()
	} else {
		account.Disable()
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// EnabledAccounts returns every enabled account across tenants
func (s *Service) EnabledAccounts(ctx context.Context) ([]channel.Account, error) {
	return s.accountRepo.FindEnabled(ctx)
}

// ValidateCredentials asks the channel whether the account's credentials work
func (s *Service) ValidateCredentials(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	account, connector, err := s.accountWithConnector(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	ok, err := connector.ValidateCredentials(ctx, account)
	if err != nil {
		return false, fmt.Errorf("validate %s credentials: %w", account.ChannelCode, err)
	}
	return ok, nil
}

// CreateListing links a product to an account for export
func (s *Service) CreateListing(ctx context.Context, cmd CreateListingCommand) (*channel.ListingLink, error) {
	account, err := s.accountRepo.FindByID(ctx, cmd.TenantID, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	link, err := channel.NewListingLink(account, cmd.ProductID, cmd.Title, cmd.Price, cmd.Currency)
	if err != nil {
		return nil, err
	}
	link.SKU = cmd.SKU
	link.Description = cmd.Description
	link.Quantity = cmd.Quantity
	link.ImageURLs = cmd.ImageURLs
	link.Tags = cmd.Tags

	if err := s.linkRepo.Save(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ListListings returns the listing links of an account
func (s *Service) ListListings(ctx context.Context, tenantID, accountID uuid.UUID) ([]channel.ListingLink, error) {
	if _, err := s.accountRepo.FindByID(ctx, tenantID, accountID); err != nil {
		return nil, err
	}
	return s.linkRepo.FindByAccount(ctx, tenantID, accountID)
}

// ExportListings publishes listing links to the account's channel. With no ids
// every link of the account is exported. Links are sent in chunks no larger
// than the connector's export batch; each link's outcome is recorded on it.
// A whole-call failure stops the export and is returned with the results of
// the chunks that completed.
func (s *Service) ExportListings(ctx context.Context, tenantID, accountID uuid.UUID, linkIDs []uuid.UUID) (*channel.ExportResult, error) {
	account, connector, err := s.accountWithConnector(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	meta := connector.Metadata()
	if !meta.CanExportProducts {
		return nil, fmt.Errorf("export to %s: %w", meta.Code, channel.ErrUnsupportedOperation)
	}
	if !account.Enabled {
		return nil, shared.NewStateConflictError("ChannelAccount", "export", "DISABLED")
	}

	links, err := s.loadLinks(ctx, account, linkIDs)
	if err != nil {
		return nil, err
	}

	result := &channel.ExportResult{}
	chunk := meta.MaxExportBatch
	if chunk <= 0 {
		chunk = len(links)
	}
	for start := 0; start < len(links); start += chunk {
		end := start + chunk
		if end > len(links) {
			end = len(links)
		}
		batch := links[start:end]

		res, err := connector.ExportProducts(ctx, account, batch)
		if err != nil {
			s.logger.Warn("listing export failed",
				zap.String("account_id", account.ID.String()),
				zap.String("channel_code", account.ChannelCode.String()),
				zap.Int("links", len(batch)),
				zap.Error(err),
			)
			return result, fmt.Errorf("export to %s: %w", account.ChannelCode, err)
		}
		if err := s.recordExport(ctx, batch, res); err != nil {
			return result, err
		}
		result.Successful = append(result.Successful, res.Successful...)
		result.Failed = append(result.Failed, res.Failed...)
	}

	s.logger.Info("listings exported",
		zap.String("account_id", account.ID.String()),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Service) loadLinks(ctx context.Context, account *channel.Account, ids []uuid.UUID) ([]*channel.ListingLink, error) {
	var found []channel.ListingLink
	var err error
	if len(ids) == 0 {
		found, err = s.linkRepo.FindByAccount(ctx, account.TenantID, account.ID)
	} else {
		found, err = s.linkRepo.FindByIDs(ctx, account.TenantID, ids)
	}
	if err != nil {
		return nil, err
	}

	links := make([]*channel.ListingLink, 0, len(found))
	for i := range found {
		if found[i].AccountID != account.ID {
			return nil, shared.NewDomainError("INVALID_LISTING", fmt.Sprintf("Listing %s does not belong to account %s", found[i].ID, account.ID))
		}
		links = append(links, &found[i])
	}
	if len(ids) > 0 && len(links) != len(ids) {
		return nil, shared.ErrNotFound
	}
	return links, nil
}

func (s *Service) recordExport(ctx context.Context, batch []*channel.ListingLink, res *channel.ExportResult) error {
	byID := make(map[string]*channel.ListingLink, len(batch))
	for _, l := range batch {
		byID[l.ID.String()] = l
	}
	now := s.now()

	for _, ok := range res.Successful {
		if l := byID[ok.LinkID]; l != nil {
			l.RecordExportSuccess(ok.ExternalProductID, ok.ExternalURL, now)
			if err := s.linkRepo.Save(ctx, l); err != nil {
				return err
			}
		}
	}
	for _, f := range res.Failed {
		if l := byID[f.LinkID]; l != nil {
			l.RecordExportFailure(f.Message, now)
			if err := s.linkRepo.Save(ctx, l); err != nil {
				return err
			}
		}
	}
	return nil
}

// PollOrders imports new orders for one account
func (s *Service) PollOrders(ctx context.Context, tenantID, accountID uuid.UUID) (*PollSummary, error) {
	account, err := s.accountRepo.FindByID(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	return s.PollAccount(ctx, account)
}

// PollAccount pages through the channel's orders created at or after the
// account's watermark and ingests each one as a relay. A run that hits
// MaxPagesPerPoll saves its cursor and the next poll continues it. The
// watermark only advances when a run reaches its last page, so a failed or
// capped poll never skips orders; ingest is idempotent so re-fetched orders
// are harmless.
func (s *Service) PollAccount(ctx context.Context, account *channel.Account) (*PollSummary, error) {
	if !account.Enabled {
		return nil, shared.NewStateConflictError("ChannelAccount", "poll", "DISABLED")
	}
	connector, err := s.registry.Get(account.ChannelCode)
	if err != nil {
		return nil, err
	}
	meta := connector.Metadata()
	if !meta.CanImportOrders {
		return nil, fmt.Errorf("import from %s: %w", meta.Code, channel.ErrUnsupportedOperation)
	}

	summary := &PollSummary{AccountID: account.ID}
	query := channel.ImportQuery{
		Since:  account.LastImportedAt,
		Limit:  meta.ClampPageSize(s.cfg.PageSize),
		Cursor: account.ImportCursor,
	}
	resuming := account.Importing()
	var newest time.Time
	more := false

	pollErr := func() error {
		for summary.Pages < s.cfg.MaxPagesPerPoll {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := connector.ImportOrders(ctx, account, query)
			if err != nil {
				return fmt.Errorf("import from %s: %w", account.ChannelCode, err)
			}
			summary.Pages++

			for _, order := range page.Orders {
				if err := s.ingest(ctx, account, order, summary); err != nil {
					return err
				}
				if order.OrderDate.After(newest) {
					newest = order.OrderDate
				}
			}
			more = page.HasMore && page.NextCursor != ""
			if !more {
				return nil
			}
			query.Cursor = page.NextCursor
		}
		return nil
	}()

	now := s.now()
	if pollErr != nil {
		if resuming && summary.Pages == 0 {
			// the saved cursor may have expired; start over from the watermark
			account.RestartImport()
		}
		account.RecordPollFailure(now, pollErr.Error())
		if err := s.accountRepo.Save(ctx, account); err != nil {
			s.logger.Warn("failed to record poll failure",
				zap.String("account_id", account.ID.String()),
				zap.Error(err),
			)
		}
		return summary, pollErr
	}

	if more {
		// stopped at the page cap: keep the watermark until the run ends
		account.ResumeImport(query.Cursor, newest)
		summary.Resumed = true
	} else {
		account.CompleteImport(newest)
	}
	account.RecordPollSuccess(now)
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return summary, err
	}
	summary.Watermark = account.LastImportedAt

	if summary.Imported > 0 {
		s.logger.Info("orders imported",
			zap.String("tenant_id", account.TenantID.String()),
			zap.String("account_id", account.ID.String()),
			zap.String("channel_code", account.ChannelCode.String()),
			zap.Int("pages", summary.Pages),
			zap.Int("created", summary.Created),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("rejected", summary.Rejected),
		)
	}
	return summary, nil
}

// ingest hands one order to the relay service. Orders the relay rejects as
// invalid are counted and skipped so one bad order cannot stall the account.
func (s *Service) ingest(ctx context.Context, account *channel.Account, order channel.ExternalOrder, summary *PollSummary) error {
	summary.Imported++
	_, created, err := s.ingester.Ingest(ctx, relayapp.IngestCommand{
		TenantID:    account.TenantID,
		SellerID:    account.SellerID,
		SupplierID:  account.SupplierID,
		ChannelCode: account.ChannelCode,
		Order:       order,
	})
	if err != nil {
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) && isValidationCode(domainErr.Code) {
			summary.Rejected++
			s.logger.Warn("external order rejected",
				zap.String("account_id", account.ID.String()),
				zap.String("external_order_id", order.ExternalOrderID),
				zap.String("code", domainErr.Code),
				zap.String("reason", domainErr.Message),
			)
			return nil
		}
		return fmt.Errorf("ingest %s order %s: %w", account.ChannelCode, order.ExternalOrderID, err)
	}
	if created {
		summary.Created++
	} else {
		summary.Duplicates++
	}
	return nil
}

func (s *Service) accountWithConnector(ctx context.Context, tenantID, id uuid.UUID) (*channel.Account, channel.Connector, error) {
	account, err := s.accountRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	connector, err := s.registry.Get(account.ChannelCode)
	if err != nil {
		return nil, nil, err
	}
	return account, connector, nil
}

func isValidationCode(code string) bool {
	return strings.HasPrefix(code, "INVALID_") && code != shared.ErrInvalidState.Code
}
