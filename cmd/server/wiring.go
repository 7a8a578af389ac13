package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	settlementapp "github.com/marketrelay/backend/internal/application/settlement"
	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/marketrelay/backend/internal/infrastructure/cache"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/connector"
	"github.com/marketrelay/backend/internal/infrastructure/connector/memory"
	"github.com/marketrelay/backend/internal/infrastructure/connector/shopify"
	"github.com/marketrelay/backend/internal/infrastructure/connector/taobao"
	"github.com/marketrelay/backend/internal/infrastructure/notification"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// buildPolicies converts the configured commission policies. Policies without
// their own hold window inherit defaultHold.
func buildPolicies(cfgs []config.PolicyConfig, defaultHold time.Duration) ([]commission.Policy, error) {
	policies := make([]commission.Policy, 0, len(cfgs))
	for _, pc := range cfgs {
		p := commission.Policy{
			ID:         pc.ID,
			Type:       commission.PolicyType(strings.ToUpper(pc.Type)),
			HoldWindow: pc.HoldWindow,
		}
		if p.HoldWindow == 0 {
			p.HoldWindow = defaultHold
		}

		var err error
		if p.Rate, err = parseAmount(pc.Rate); err != nil {
			return nil, fmt.Errorf("policy %s: rate: %w", pc.ID, err)
		}
		if p.FixedAmount, err = parseAmount(pc.FixedAmount); err != nil {
			return nil, fmt.Errorf("policy %s: fixed_amount: %w", pc.ID, err)
		}
		for i, tc := range pc.Tiers {
			minAmount, err := parseAmount(tc.MinAmount)
			if err != nil {
				return nil, fmt.Errorf("policy %s: tier %d min_amount: %w", pc.ID, i, err)
			}
			rate, err := parseAmount(tc.Rate)
			if err != nil {
				return nil, fmt.Errorf("policy %s: tier %d rate: %w", pc.ID, i, err)
			}
			p.Tiers = append(p.Tiers, commission.Tier{MinAmount: minAmount, Rate: rate})
		}
		if p.EffectiveFrom, err = parseInstant(pc.EffectiveFrom); err != nil {
			return nil, fmt.Errorf("policy %s: effective_from: %w", pc.ID, err)
		}
		if p.EffectiveTo, err = parseInstant(pc.EffectiveTo); err != nil {
			return nil, fmt.Errorf("policy %s: effective_to: %w", pc.ID, err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseInstant(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// buildSettlementConfig converts settlement settings for the settlement service
func buildSettlementConfig(cfg config.SettlementConfig) (settlementapp.Config, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return settlementapp.Config{}, fmt.Errorf("settlement timezone %q: %w", cfg.Timezone, err)
	}

	length := settlement.PeriodLength(strings.ToUpper(cfg.PeriodLength))
	if !length.IsValid() {
		return settlementapp.Config{}, fmt.Errorf("unknown settlement period length %q", cfg.PeriodLength)
	}

	rates := make(map[settlement.SettlementType]decimal.Decimal, len(cfg.DeductionRates))
	for key, value := range cfg.DeductionRates {
		t := settlement.SettlementType(strings.ToUpper(key))
		if !t.IsValid() {
			return settlementapp.Config{}, fmt.Errorf("deduction rate for unknown settlement type %q", key)
		}
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return settlementapp.Config{}, fmt.Errorf("deduction rate %s: %w", key, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return settlementapp.Config{}, fmt.Errorf("deduction rate %s must be within [0, 1]", key)
		}
		rates[t] = rate
	}

	return settlementapp.Config{
		DefaultCurrency: cfg.DefaultCurrency,
		DeductionRates:  rates,
		PeriodLength:    length,
		Location:        loc,
	}, nil
}

// buildConnectorRegistry registers the sandbox connector and every enabled
// marketplace connector
func buildConnectorRegistry(cfg config.ChannelConfig, orders channel.OrderStore, log *zap.Logger) *connector.Registry {
	registry := connector.NewRegistry()
	registry.MustRegister(memory.NewConnector(orders))
	if cfg.Taobao.Enabled {
		registry.MustRegister(taobao.NewConnector(taobao.Config{
			GatewayURL: cfg.Taobao.GatewayURL,
			Timeout:    cfg.Taobao.Timeout,
		}, log))
	}
	if cfg.Shopify.Enabled {
		registry.MustRegister(shopify.NewConnector(shopify.Config{
			APIVersion: cfg.Shopify.APIVersion,
			Timeout:    cfg.Shopify.Timeout,
		}, log))
	}
	return registry
}

// newOrderStore keeps sandbox orders in Redis when a client is available
func newOrderStore(client redis.UniversalClient) channel.OrderStore {
	if client == nil {
		return memory.NewOrderStore()
	}
	return cache.NewRedisOrderStore(client, cache.DefaultOrderStorePrefix)
}

// newNotifier selects the operator notification driver
func newNotifier(ctx context.Context, cfg config.NotificationConfig, log *zap.Logger) (notification.Notifier, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "log":
		return notification.NewLogNotifier(log), nil
	case "sqs":
		n, err := notification.NewSQSNotifierFromConfig(ctx, cfg.Region, cfg.QueueURL)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "amqp":
		n, err := notification.DialAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}
