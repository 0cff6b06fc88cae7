package strategy

import (
	"context"
	"errors"

	"ashare-backtest-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidPeriods      = errors.New("strategy periods must be positive and ordered fast < slow")
	ErrInvalidBands        = errors.New("KDJ bands must satisfy 0 < oversold < overbought < 100")
)

// Strategy type constants.
const (
	TypeMACross   = "MA_CROSS"
	TypeMACD      = "MACD"
	TypeKDJ       = "KDJ"
	TypeBollinger = "BOLLINGER"
)

// Strategy is the signal-producing interface the engine drives.
// Declared here as well so the factory can return it without importing
// the engine package.
type Strategy interface {
	Next(ctx context.Context, history []*domain.Candle) (*domain.Signal, error)
	ID() string
}

// Config selects and parameterizes a strategy. Zero-valued parameters
// fall back to the conventional defaults for the type.
type Config struct {
	Type string `yaml:"type"`

	FastPeriod   int `yaml:"fast_period,omitempty"`
	SlowPeriod   int `yaml:"slow_period,omitempty"`
	SignalPeriod int `yaml:"signal_period,omitempty"`

	Period     int     `yaml:"period,omitempty"`
	Oversold   float64 `yaml:"oversold,omitempty"`
	Overbought float64 `yaml:"overbought,omitempty"`
	BandMult   float64 `yaml:"band_mult,omitempty"`
}

// FromConfig creates a Strategy from Config, validating parameters per
// strategy type.
func FromConfig(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case TypeMACross:
		fast, slow := defaultInt(cfg.FastPeriod, 5), defaultInt(cfg.SlowPeriod, 20)
		if fast <= 0 || slow <= fast {
			return nil, ErrInvalidPeriods
		}
		return NewMACrossStrategy(fast, slow), nil

	case TypeMACD:
		fast, slow := defaultInt(cfg.FastPeriod, 12), defaultInt(cfg.SlowPeriod, 26)
		signal := defaultInt(cfg.SignalPeriod, 9)
		if fast <= 0 || slow <= fast || signal <= 0 {
			return nil, ErrInvalidPeriods
		}
		return NewMACDStrategy(fast, slow, signal), nil

	case TypeKDJ:
		period := defaultInt(cfg.Period, 9)
		oversold, overbought := defaultFloat(cfg.Oversold, 20), defaultFloat(cfg.Overbought, 80)
		if period <= 0 {
			return nil, ErrInvalidPeriods
		}
		if oversold <= 0 || overbought <= oversold || overbought >= 100 {
			return nil, ErrInvalidBands
		}
		return NewKDJStrategy(period, oversold, overbought), nil

	case TypeBollinger:
		period := defaultInt(cfg.Period, 20)
		mult := defaultFloat(cfg.BandMult, 2.0)
		if period <= 0 || mult <= 0 {
			return nil, ErrInvalidPeriods
		}
		return NewBollingerStrategy(period, mult), nil

	default:
		return nil, ErrUnknownStrategyType
	}
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Compile-time interface checks.
var (
	_ Strategy = (*MACrossStrategy)(nil)
	_ Strategy = (*MACDStrategy)(nil)
	_ Strategy = (*KDJStrategy)(nil)
	_ Strategy = (*BollingerStrategy)(nil)
)
