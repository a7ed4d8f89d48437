package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи gin.Context, которые выставляет APIKey
const (
	ctxAPIKeyValidated = "api_key_validated"
	ctxAPIKeyName      = "api_key_name"
)

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к их описаниям
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
	// Optional если true, запросы без API ключа будут обработаны (но без повышенных привилегий)
	Optional bool
}

// DefaultAPIKeyConfig конфигурация по умолчанию
var DefaultAPIKeyConfig = APIKeyConfig{
	HeaderName: "X-API-Key",
	Optional:   false,
}

// APIKey middleware для аутентификации по API ключу
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyConfig.HeaderName
	}
	return &APIKey{config: config}
}

// extract ключ из заголовка или из Authorization: Bearer
func (ak *APIKey) extract(c *gin.Context) string {
	if key := c.GetHeader(ak.config.HeaderName); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// lookup сравнивает со всеми ключами за постоянное время
func (ak *APIKey) lookup(apiKey string) (string, bool) {
	var name string
	found := false
	for validKey, keyName := range ak.config.ValidKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			name = keyName
			found = true
		}
	}
	return name, found
}

// Middleware возвращает Gin middleware handler для API key аутентификации
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := ak.extract(c)

		if apiKey == "" {
			if ak.config.Optional {
				c.Set(ctxAPIKeyValidated, false)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "API key required: pass it in the " + ak.config.HeaderName + " header or as Authorization: Bearer",
			})
			return
		}

		name, ok := ak.lookup(apiKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Invalid API key",
			})
			return
		}

		c.Set(ctxAPIKeyValidated, true)
		c.Set(ctxAPIKeyName, name)

		c.Next()
	}
}

// RequireAPIKey хелпер для создания middleware, требующего API ключ для определённых роутов
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: validKeys}).Middleware()
}

// APIKeyName описание ключа, которым прошёл запрос
func APIKeyName(c *gin.Context) (string, bool) {
	if !IsAPIKeyValidated(c) {
		return "", false
	}
	return c.GetString(ctxAPIKeyName), true
}

// IsAPIKeyValidated проверяет, был ли API ключ успешно валидирован
func IsAPIKeyValidated(c *gin.Context) bool {
	return c.GetBool(ctxAPIKeyValidated)
}
