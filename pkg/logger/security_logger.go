package logger

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s]+`)
	secretPattern = regexp.MustCompile(`(?i)(key|token|secret|authorization)[=:]\s*[a-zA-Z0-9._\-]+`)
)

// SecurityLogger keeps the provider credential and full request URLs out of logs.
type SecurityLogger struct {
	*Logger
}

func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{Logger: GetLogger()}
}

// MaskSecret renders a credential as a short stable fingerprint.
func (sl *SecurityLogger) MaskSecret(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "key#" + sl.GenerateHash(secret)[:8]
}

// MaskURL keeps the host and replaces path and query with a hash.
func (sl *SecurityLogger) MaskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "url#" + sl.GenerateHash(rawURL)[:8]
	}
	return fmt.Sprintf("%s#%s", parsed.Host, sl.GenerateHash(rawURL)[:8])
}

// MaskSensitiveData masks values whose keys look like URLs or credentials.
func (sl *SecurityLogger) MaskSensitiveData(data map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(data))
	for key, value := range data {
		lowerKey := strings.ToLower(key)
		str, isString := value.(string)
		switch {
		case isString && (strings.Contains(lowerKey, "key") || strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "secret")):
			masked[key] = sl.MaskSecret(str)
		case isString && (strings.Contains(lowerKey, "url") || strings.Contains(lowerKey, "dsn")):
			masked[key] = sl.MaskURL(str)
		default:
			masked[key] = value
		}
	}
	return masked
}

func (sl *SecurityLogger) GenerateHash(data string) string {
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8])
}

// MaskLogMessage masks URLs and inline credentials in free text.
func (sl *SecurityLogger) MaskLogMessage(message string) string {
	masked := urlPattern.ReplaceAllStringFunc(message, sl.MaskURL)
	return secretPattern.ReplaceAllString(masked, "${1}=***")
}

func (sl *SecurityLogger) SafeInfo(msg string, fields map[string]interface{}) {
	sl.Logger.WithFields(sl.MaskSensitiveData(fields)).Info(sl.MaskLogMessage(msg))
}

func (sl *SecurityLogger) SafeWarn(msg string, fields map[string]interface{}) {
	sl.Logger.WithFields(sl.MaskSensitiveData(fields)).Warn(sl.MaskLogMessage(msg))
}

func (sl *SecurityLogger) SafeError(msg string, err error, fields map[string]interface{}) {
	masked := sl.MaskSensitiveData(fields)
	if err != nil {
		masked["error"] = sl.MaskLogMessage(err.Error())
	}
	sl.Logger.WithFields(masked).Error(sl.MaskLogMessage(msg))
}

func GetSecurityLogger() *SecurityLogger {
	return NewSecurityLogger()
}
