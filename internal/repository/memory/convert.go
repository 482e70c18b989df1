package memrepository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func toDecimalPtr(v any) *decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return &t
	case *decimal.Decimal:
		return t
	default:
		return nil
	}
}

func toTimePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}

func toJSON(v any) datatypes.JSON {
	switch t := v.(type) {
	case nil:
		return nil
	case datatypes.JSON:
		return t
	case []byte:
		return datatypes.JSON(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return datatypes.JSON(raw)
	}
}
