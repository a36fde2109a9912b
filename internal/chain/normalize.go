// Package chain flattens nested option chain payloads into canonical contracts
// and applies the call/put and moneyness filters.
//
// Results keep the vendor's iteration order: expiration groups as they appear
// in the payload, then strikes, then contracts. Callers needing strike order
// must sort the result themselves.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/domain"
)

// Converter maps one raw vendor contract onto the canonical shape.
type Converter[C any] func(raw C) (domain.OptionContract, error)

// Flatten walks every map in order. A contract whose strike differs from the
// strike key it was listed under is logged and dropped. A missing expiration on
// the converted contract is taken from the expiration key.
func Flatten[C any](logger *zap.Logger, convert Converter[C], maps ...ExpirationMap[C]) ([]domain.OptionContract, error) {
	contracts := make([]domain.OptionContract, 0)

	for _, m := range maps {
		for _, exp := range m {
			expiration, err := ParseExpirationKey(exp.Key)
			if err != nil {
				return nil, domain.MalformedError("expiration key %q: %v", exp.Key, err)
			}

			for _, strike := range exp.Strikes {
				strikeKey, err := decimal.NewFromString(strike.Key)
				if err != nil {
					return nil, domain.MalformedError("strike key %q under %s: %v", strike.Key, exp.Key, err)
				}

				for _, raw := range strike.Contracts {
					contract, err := convert(raw)
					if err != nil {
						if errors.Is(err, domain.ErrMalformedResponse) {
							return nil, err
						}
						return nil, domain.MalformedError("contract at %s/%s: %v", exp.Key, strike.Key, err)
					}

					if !contract.Strike.Equal(strikeKey) {
						logger.Warn("Dropping contract with mismatched strike",
							zap.String("symbol", contract.Symbol),
							zap.String("expiration", exp.Key),
							zap.String("strike_key", strike.Key),
							zap.String("strike", contract.Strike.String()))
						continue
					}

					if contract.Expiration.IsZero() {
						contract.Expiration = expiration
					}
					contracts = append(contracts, contract)
				}
			}
		}
	}

	return contracts, nil
}

// ParseFilter turns caller filter strings into a ChainFilter. callOrPut is
// "call", "put" or empty; inOrOut is "in", "out" or empty. Matching ignores case.
func ParseFilter(callOrPut, inOrOut string) (domain.ChainFilter, error) {
	var filter domain.ChainFilter

	switch strings.ToLower(strings.TrimSpace(callOrPut)) {
	case "":
	case "call":
		filter.Type = domain.Call
	case "put":
		filter.Type = domain.Put
	default:
		return filter, &domain.InvalidFilterError{Filter: "call_or_put", Value: callOrPut}
	}

	switch strings.ToLower(strings.TrimSpace(inOrOut)) {
	case "":
	case "in":
		filter.Moneyness = domain.InTheMoney
	case "out":
		filter.Moneyness = domain.OutOfTheMoney
	default:
		return filter, &domain.InvalidFilterError{Filter: "in_or_out", Value: inOrOut}
	}

	return filter, nil
}

func validate(filter domain.ChainFilter) error {
	switch filter.Type {
	case "", domain.Call, domain.Put:
	default:
		return &domain.InvalidFilterError{Filter: "call_or_put", Value: string(filter.Type)}
	}
	if filter.Moneyness > domain.OutOfTheMoney {
		return &domain.InvalidFilterError{Filter: "in_or_out", Value: fmt.Sprint(filter.Moneyness)}
	}
	return nil
}

// Apply keeps the contracts matching filter, preserving order.
func Apply(contracts []domain.OptionContract, filter domain.ChainFilter) ([]domain.OptionContract, error) {
	if err := validate(filter); err != nil {
		return nil, err
	}

	kept := make([]domain.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.Moneyness == domain.InTheMoney && !c.InTheMoney {
			continue
		}
		if filter.Moneyness == domain.OutOfTheMoney && c.InTheMoney {
			continue
		}
		kept = append(kept, c)
	}

	return kept, nil
}

// Normalize flattens maps and applies filter in one step.
func Normalize[C any](logger *zap.Logger, convert Converter[C], filter domain.ChainFilter, maps ...ExpirationMap[C]) ([]domain.OptionContract, error) {
	if err := validate(filter); err != nil {
		return nil, err
	}
	contracts, err := Flatten(logger, convert, maps...)
	if err != nil {
		return nil, err
	}
	return Apply(contracts, filter)
}
