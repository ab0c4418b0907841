package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMarketUnsupported is returned for countries the storefront does not sell in.
var ErrMarketUnsupported = errors.New("market service: unsupported market")

type marketService struct {
	markets []Market
	index   map[string]Market
	def     Market
}

// NewMarketService builds the market table. The default country must be one of the markets.
func NewMarketService(markets []Market, defaultCountry string) (MarketService, error) {
	if len(markets) == 0 {
		return nil, errors.New("market service: at least one market is required")
	}
	svc := &marketService{index: make(map[string]Market, len(markets))}
	for _, m := range markets {
		m.Country = strings.ToUpper(strings.TrimSpace(m.Country))
		m.Currency = strings.ToUpper(strings.TrimSpace(m.Currency))
		if m.Country == "" || m.Currency == "" {
			return nil, fmt.Errorf("market service: incomplete market %+v", m)
		}
		if _, dup := svc.index[m.Country]; dup {
			return nil, fmt.Errorf("market service: duplicate market %s", m.Country)
		}
		svc.index[m.Country] = m
		svc.markets = append(svc.markets, m)
	}
	def, ok := svc.index[strings.ToUpper(strings.TrimSpace(defaultCountry))]
	if !ok {
		return nil, fmt.Errorf("%w: default %q", ErrMarketUnsupported, defaultCountry)
	}
	svc.def = def
	return svc, nil
}

func (s *marketService) List() []Market {
	return append([]Market(nil), s.markets...)
}

func (s *marketService) Default() Market { return s.def }

func (s *marketService) Resolve(country string) (Market, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return s.def, nil
	}
	m, ok := s.index[country]
	if !ok {
		return Market{}, fmt.Errorf("%w: %s", ErrMarketUnsupported, country)
	}
	return m, nil
}
