package ibkr

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ConID is a contract id. The gateway sends it as a number or a string
// depending on the endpoint.
type ConID int64

func (c *ConID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*c = ConID(n)
	return nil
}

func (c ConID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

type SecDef struct {
	ConID       ConID  `json:"conid"`
	Symbol      string `json:"symbol"`
	CompanyName string `json:"companyName"`
}

// Snapshot fields: 31 last price, 7295 open. Prices may carry a one letter
// prefix such as "C" (prior close) or "H" (halted).
type Snapshot struct {
	ConID   ConID  `json:"conid"`
	Last    string `json:"31"`
	Open    string `json:"7295"`
	Updated int64  `json:"_updated"`
}

type HistoryBar struct {
	Open   decimal.NullDecimal `json:"o"`
	High   decimal.NullDecimal `json:"h"`
	Low    decimal.NullDecimal `json:"l"`
	Close  decimal.NullDecimal `json:"c"`
	Volume decimal.Decimal     `json:"v"`
	Time   int64               `json:"t"`
}

type History struct {
	Symbol string       `json:"symbol"`
	Data   []HistoryBar `json:"data"`
}

func parsePrice(field string) (decimal.Decimal, error) {
	field = strings.TrimLeft(strings.TrimSpace(field), "CH")
	return decimal.NewFromString(field)
}

