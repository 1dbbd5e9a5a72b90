package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"tixledger/internal/logger"

	"github.com/gin-gonic/gin"
)

const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in X-Signature.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignature проверяет подпись тела уведомления от платежного провайдера.
// Тело восстанавливается для последующего биндинга.
func WebhookSignature(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		got, err := hex.DecodeString(c.GetHeader(SignatureHeader))
		if err != nil || len(got) == 0 {
			logger.WithContext(c.Request.Context()).Warn("Webhook without valid signature header", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		mac := hmac.New(sha256.New, key)
		mac.Write(body)
		if !hmac.Equal(got, mac.Sum(nil)) {
			logger.WithContext(c.Request.Context()).Warn("Webhook signature mismatch", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		c.Next()
	}
}
