package model

import "github.com/shopspring/decimal"

// Amount はAPIとイベントに出す金額。JSONでは常に小数2桁の文字列（"11.00"）。
// 読み込みは decimal と同じ（文字列でも数値でもよい）。
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.StringFixed(CurrencyPlaces) + `"`), nil
}
