package httpapi

import (
	"net"
	"net/http"
	"strings"

	"nrkgo.com/accounts/internal/accounts"
)

const unknown = "Unknown"

// clientIPHeaders are consulted in order before falling back to the socket address.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_CLIENT_IP",
	"HTTP_X_FORWARDED_FOR",
}

// ClientIP returns the first non-empty, non-"unknown" proxy header value, or
// the host part of RemoteAddr. Only the first hop of a list is used.
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		v := r.Header.Get(h)
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, "unknown") {
			continue
		}
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DeviceFromRequest captures the client details stored on a new session.
func DeviceFromRequest(r *http.Request) *accounts.Device {
	ua := r.UserAgent()
	return &accounts.Device{
		IP:        ClientIP(r),
		UserAgent: ua,
		Browser:   browserOf(ua),
		OS:        osOf(ua),
		Name:      deviceNameOf(ua),
	}
}

func browserOf(ua string) string {
	a := strings.ToLower(ua)
	switch {
	case a == "":
		return unknown
	case strings.Contains(a, "msie"), strings.Contains(a, "trident"):
		return "Internet Explorer"
	case strings.Contains(a, "edg"):
		return "Microsoft Edge"
	case strings.Contains(a, "opr"), strings.Contains(a, "opera"):
		return "Opera"
	case strings.Contains(a, "firefox"):
		return "Mozilla Firefox"
	case strings.Contains(a, "chrome") && !strings.Contains(a, "yandex"):
		return "Google Chrome"
	case strings.Contains(a, "safari"):
		return "Safari"
	default:
		return unknown
	}
}

func osOf(ua string) string {
	a := strings.ToLower(ua)
	switch {
	case a == "":
		return unknown
	case strings.Contains(a, "windows"):
		return "Windows"
	case strings.Contains(a, "android"):
		return "Android"
	case strings.Contains(a, "iphone"), strings.Contains(a, "ipad"), strings.Contains(a, "ipod"):
		return "iOS"
	case strings.Contains(a, "mac"):
		return "MacOS"
	case strings.Contains(a, "x11"):
		return "Unix"
	case strings.Contains(a, "linux"):
		return "Linux"
	default:
		return unknown
	}
}

func deviceNameOf(ua string) string {
	a := strings.ToLower(ua)
	switch {
	case a == "":
		return unknown
	case strings.Contains(a, "android"):
		return "Android Device"
	case strings.Contains(a, "iphone"), strings.Contains(a, "ipad"), strings.Contains(a, "ipod"):
		return "iOS Device"
	default:
		return "Desktop"
	}
}
