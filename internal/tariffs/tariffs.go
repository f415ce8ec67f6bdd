// Package tariffs содержит статический каталог тарифов доступа.
//
// Тариф неизменяем и задаётся кодом: длительность в месяцах и цена
// в обеих валютах (Telegram Stars и рубли). Каталог не хранится в базе.
package tariffs

import (
	"errors"
	"fmt"
)

// ErrUnknownTariff возвращается для кода, отсутствующего в каталоге.
var ErrUnknownTariff = errors.New("unknown tariff")

// Tariff описывает тарифный план доступа к каналу.
type Tariff struct {
	Code       string // Код тарифа, например "3m"
	Months     int    // Длительность в месяцах
	PriceStars int    // Цена в Telegram Stars (XTR)
	PriceRub   int    // Цена в рублях
}

var catalog = map[string]Tariff{
	"1m":  {Code: "1m", Months: 1, PriceStars: 250, PriceRub: 100},
	"3m":  {Code: "3m", Months: 3, PriceStars: 650, PriceRub: 300},
	"6m":  {Code: "6m", Months: 6, PriceStars: 1200, PriceRub: 480},
	"12m": {Code: "12m", Months: 12, PriceStars: 2100, PriceRub: 780},
}

// Get возвращает тариф по коду или ErrUnknownTariff.
func Get(code string) (Tariff, error) {
	t, ok := catalog[code]
	if !ok {
		return Tariff{}, fmt.Errorf("%w: %s", ErrUnknownTariff, code)
	}
	return t, nil
}

// All возвращает тарифы в порядке возрастания длительности.
func All() []Tariff {
	codes := []string{"1m", "3m", "6m", "12m"}
	result := make([]Tariff, 0, len(codes))
	for _, code := range codes {
		result = append(result, catalog[code])
	}
	return result
}
