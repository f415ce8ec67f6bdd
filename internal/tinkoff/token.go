package tinkoff

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Token вычисляет подпись запроса: секрет, затем значения всех параметров
// в порядке сортировки ключей (поле Token исключается, пустые значения
// пропускаются), SHA-256 от конкатенации, hex.
// Той же схемой подписывается исходящий Init и проверяется входящий вебхук.
func Token(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.EqualFold(key, "Token") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, key := range keys {
		value := params[key]
		if value == "" {
			continue
		}
		b.WriteString(value)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifySignature пересчитывает подпись по всем полям кроме Token
// и сравнивает с присланной. Отсутствие поля Token — отказ.
func VerifySignature(params map[string]string, secret string) bool {
	sent, ok := params["Token"]
	if !ok {
		return false
	}
	return Token(params, secret) == sent
}

// FlattenParams приводит расшифрованный JSON вебхука к строковым значениям
// в том виде, в каком шлюз подписывает уведомления: числа без дробной
// части — как целые, булевы значения — строчными true/false.
func FlattenParams(raw map[string]any) map[string]string {
	params := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			params[key] = v
		case bool:
			params[key] = strconv.FormatBool(v)
		case float64:
			if v == float64(int64(v)) {
				params[key] = strconv.FormatInt(int64(v), 10)
			} else {
				params[key] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case nil:
			// отсутствующее значение не участвует в подписи
		default:
			// вложенные объекты шлюз не подписывает
		}
	}
	return params
}
