package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"socket", nil, "192.0.2.1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"unknown skipped", map[string]string{"X-Forwarded-For": "unknown", "Proxy-Client-IP": "198.51.100.7"}, "198.51.100.7"},
		{"weblogic", map[string]string{"WL-Proxy-Client-IP": "198.51.100.8"}, "198.51.100.8"},
		{"legacy client ip", map[string]string{"HTTP_CLIENT_IP": "198.51.100.9"}, "198.51.100.9"},
		{"legacy forwarded", map[string]string{"HTTP_X_FORWARDED_FOR": "198.51.100.10"}, "198.51.100.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:5555"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeviceFromRequest(t *testing.T) {
	cases := []struct {
		ua                  string
		browser, os, device string
	}{
		{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			"Google Chrome", "Windows", "Desktop",
		},
		{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			"Microsoft Edge", "Windows", "Desktop",
		},
		{
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			"Safari", "iOS", "iOS Device",
		},
		{
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			"Google Chrome", "Android", "Android Device",
		},
		{
			"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Mozilla Firefox", "Unix", "Desktop",
		},
		{"", "Unknown", "Unknown", "Unknown"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", tc.ua)
		dev := DeviceFromRequest(req)
		if dev.Browser != tc.browser || dev.OS != tc.os || dev.Name != tc.device {
			t.Fatalf("UA %q classified as %+v", tc.ua, dev)
		}
		if dev.IP != "192.0.2.1" {
			t.Fatalf("unexpected ip %q", dev.IP)
		}
	}
}
