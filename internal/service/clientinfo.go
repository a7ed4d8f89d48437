package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	loopbackIP   = "127.0.0.1"
	ipHashLength = 32

	// Размеры колонок clicks.country и clicks.city
	maxCountryLength = 64
	maxCityLength    = 128
)

// ClientIP достаёт адрес клиента: первый адрес X-Forwarded-For,
// затем X-Real-IP, иначе loopback
func ClientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return loopbackIP
}

// HashIP необратимый хэш IP фиксированной длины. Одинаковый IP и соль дают одинаковый хэш.
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:ipHashLength]
}

// isLoopback true для пустого, loopback и нераспознанного адреса
func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed == nil || parsed.IsLoopback()
}

// uaRule правило классификации: все подстроки из none отсутствуют
// и хотя бы одна из any присутствует
type uaRule struct {
	label string
	any   []string
	none  []string
}

func (r uaRule) match(ua string) bool {
	for _, s := range r.none {
		if strings.Contains(ua, s) {
			return false
		}
	}
	for _, s := range r.any {
		if strings.Contains(ua, s) {
			return true
		}
	}
	return false
}

// Правила проверяются по порядку, побеждает первое совпадение
var (
	deviceRules = []uaRule{
		{label: "mobile", any: []string{"mobile", "android", "iphone"}},
		{label: "tablet", any: []string{"tablet", "ipad"}},
	}

	browserRules = []uaRule{
		{label: "Edge", any: []string{"edge", "edg/"}},
		{label: "Opera", any: []string{"opera", "opr/"}},
		{label: "Chrome", any: []string{"chrome"}},
		{label: "Firefox", any: []string{"firefox"}},
		{label: "Safari", any: []string{"safari"}},
	}

	osRules = []uaRule{
		{label: "Windows", any: []string{"windows"}},
		{label: "Android", any: []string{"android"}},
		{label: "iOS", any: []string{"iphone", "ipad", "ipod", "ios"}},
		{label: "macOS", any: []string{"mac os", "macos"}},
		{label: "Linux", any: []string{"linux"}},
	}
)

func classify(ua string, rules []uaRule, fallback string) string {
	ua = strings.ToLower(ua)
	for _, r := range rules {
		if r.match(ua) {
			return r.label
		}
	}
	return fallback
}

// UserAgentInfo результат разбора User-Agent
type UserAgentInfo struct {
	DeviceType string
	Browser    string
	OS         string
}

func ParseUserAgent(ua string) UserAgentInfo {
	return UserAgentInfo{
		DeviceType: classify(ua, deviceRules, "desktop"),
		Browser:    classify(ua, browserRules, "Other"),
		OS:         classify(ua, osRules, "Other"),
	}
}

// sanitizeText заменяет битые UTF-8 последовательности на U+FFFD и обрезает
// строку до limit символов. limit <= 0 без обрезки.
func sanitizeText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}
