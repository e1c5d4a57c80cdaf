// Package signature проверяет подлинность вебхуков платёжного шлюза.
// Проверка выполняется над сырыми байтами тела запроса и не зависит
// от HTTP-фреймворка.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verify сверяет подпись HMAC-SHA256 (base64) тела запроса с ожидаемой.
// Сравнение выполняется за постоянное время.
func Verify(body []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// Sign возвращает подпись тела запроса. Используется в тестах
// и при локальной эмуляции шлюза.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
