package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи контекста gin
const (
	ctxKeyValidated = "api_key_validated"
	ctxKeyName      = "api_key_name"
	ctxKeyAdmin     = "api_key_admin"
)

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к именам вызывающих
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
	// Optional если true, запросы без API ключа будут обработаны (вызывающий определяется по IP)
	Optional bool
	// Admin помечает прошедших проверку как привилегированных
	Admin bool
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

// Middleware возвращает Gin middleware handler для API key аутентификации
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := ak.extractKey(c)

		if apiKey == "" {
			if ak.config.Optional {
				c.Set(ctxKeyValidated, false)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key, query параметр api_key или Authorization: Bearer",
			})
			c.Abort()
			return
		}

		keyName, valid := ak.lookup(apiKey)
		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			c.Abort()
			return
		}

		// Устанавливаем значения в контекст для последующих handlers
		c.Set(ctxKeyValidated, true)
		c.Set(ctxKeyName, keyName)
		if ak.config.Admin {
			c.Set(ctxKeyAdmin, true)
		}

		c.Next()
	}
}

// extractKey ищет ключ в заголовке, затем в query параметре, затем в Authorization: Bearer
func (ak *APIKey) extractKey(c *gin.Context) string {
	if key := c.GetHeader(ak.config.HeaderName); key != "" {
		return key
	}
	if key := c.Query("api_key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// lookup сравнивает ключ со всеми валидными за постоянное время
func (ak *APIKey) lookup(apiKey string) (string, bool) {
	var (
		name  string
		found bool
	)
	for validKey, keyName := range ak.config.ValidKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			name, found = keyName, true
		}
	}
	return name, found
}

// RequireAPIKey хелпер для создания middleware, требующего API ключ для определённых роутов
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: validKeys}).Middleware()
}

// OptionalAPIKey хелпер для создания middleware, который опционально принимает API ключ
func OptionalAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: validKeys, Optional: true}).Middleware()
}

// RequireAdmin пропускает только привилегированных вызывающих из статического списка
func RequireAdmin(adminKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: adminKeys, Admin: true}).Middleware()
}

// IsAdmin прошёл ли вызывающий проверку администратора
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ctxKeyAdmin)
}

// Caller идентификатор вызывающего: имя ключа, а без ключа адрес клиента
func Caller(c *gin.Context) string {
	if name := c.GetString(ctxKeyName); name != "" {
		return "key:" + name
	}
	return "ip:" + c.ClientIP()
}
