package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout      = 60 * time.Second
	ServerShutdownTimeout   = 30 * time.Second
	NotificationSendTimeout = 15 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Auth defaults
const (
	DefaultJWTIssuer        = "college-feedback"
	DefaultAccessTokenTTL   = 60 * time.Minute
	DefaultRefreshTokenTTL  = 24 * time.Hour
	DefaultMaxLoginAttempts = 5
	DefaultLoginLockout     = 15 * time.Minute
	DefaultListCacheTTL     = 30 * time.Second
)

// Server and limiter defaults
const (
	DefaultServerPort        = "8080"
	DefaultServiceName       = "feedback-backend"
	DefaultRequestsPerMinute = 60
	DefaultRateLimitBurst    = 20
	DefaultRedisKeyPrefix    = "feedback:"
)

// Attachment defaults
const (
	DefaultAttachmentDir      = "media/attachments"
	DefaultMaxAttachmentBytes = 5 * 1024 * 1024
)

// Retention used by adm db cleanup
const (
	DefaultNotificationRetention = 90 * 24 * time.Hour
	DefaultOrphanAttachmentAge   = 24 * time.Hour
)

// DefaultAllowedAttachmentTypes lists the accepted upload extensions
var DefaultAllowedAttachmentTypes = []string{"pdf", "doc", "docx", "jpg", "jpeg", "png"}

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "feedback-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data:;"
)
