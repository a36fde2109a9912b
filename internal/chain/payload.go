package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Strike holds the raw contracts a vendor listed under one strike key.
type Strike[C any] struct {
	Key       string
	Contracts []C
}

// Expiration holds the strikes listed under one expiration key, e.g. "2024-03-15:3".
type Expiration[C any] struct {
	Key     string
	Strikes []Strike[C]
}

// ExpirationMap is a nested expiration -> strike -> contracts object decoded
// in document order.
type ExpirationMap[C any] []Expiration[C]

func (m *ExpirationMap[C]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	var groups ExpirationMap[C]
	err := decodeObject(dec, func(expKey string) error {
		exp := Expiration[C]{Key: expKey}
		err := decodeObject(dec, func(strikeKey string) error {
			var contracts []C
			if err := dec.Decode(&contracts); err != nil {
				return fmt.Errorf("decode contracts at strike %s: %w", strikeKey, err)
			}
			exp.Strikes = append(exp.Strikes, Strike[C]{Key: strikeKey, Contracts: contracts})
			return nil
		})
		if err != nil {
			return fmt.Errorf("expiration %s: %w", expKey, err)
		}
		groups = append(groups, exp)
		return nil
	})
	if err != nil {
		return err
	}

	*m = groups
	return nil
}

// decodeObject walks one JSON object, calling value for each key with the
// decoder positioned at that key's value. A null object is treated as empty.
func decodeObject(dec *json.Decoder, value func(key string) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err = value(key); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

// ParseExpirationKey extracts the date of an expiration key. Anything after
// the first ':' (days to expiry) is ignored.
func ParseExpirationKey(key string) (time.Time, error) {
	date, _, _ := strings.Cut(key, ":")
	return time.Parse(time.DateOnly, date)
}

// ExpirationDates lists the distinct expiration dates across maps, ascending.
func ExpirationDates[C any](maps ...ExpirationMap[C]) ([]time.Time, error) {
	seen := make(map[time.Time]struct{})
	dates := make([]time.Time, 0)

	for _, m := range maps {
		for _, exp := range m {
			date, err := ParseExpirationKey(exp.Key)
			if err != nil {
				return nil, fmt.Errorf("expiration key %q: %w", exp.Key, err)
			}
			if _, ok := seen[date]; ok {
				continue
			}
			seen[date] = struct{}{}
			dates = append(dates, date)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
