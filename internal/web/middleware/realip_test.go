package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		remote  string
		header  [2]string
		want    string
	}{
		{
			name:   "no proxies keeps peer",
			remote: "203.0.113.7:1234",
			header: [2]string{"X-Real-IP", "10.0.0.1"},
			want:   "203.0.113.7:1234",
		},
		{
			name:    "trusted proxy real ip",
			proxies: []string{"127.0.0.0/8"},
			remote:  "127.0.0.1:9999",
			header:  [2]string{"X-Real-IP", "198.51.100.4"},
			want:    "198.51.100.4",
		},
		{
			name:    "plain address entry acts as cidr",
			proxies: []string{"127.0.0.1"},
			remote:  "127.0.0.1:9999",
			header:  [2]string{"X-Forwarded-For", "198.51.100.4, 10.0.0.2"},
			want:    "198.51.100.4",
		},
		{
			name:    "untrusted peer ignores headers",
			proxies: []string{"192.0.2.0/24"},
			remote:  "203.0.113.7:1234",
			header:  [2]string{"X-Forwarded-For", "198.51.100.4"},
			want:    "203.0.113.7:1234",
		},
		{
			name:    "unparseable header keeps peer",
			proxies: []string{"127.0.0.1"},
			remote:  "127.0.0.1:9999",
			header:  [2]string{"X-Real-IP", "not-an-address"},
			want:    "127.0.0.1:9999",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(tt.proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.header[0] != "" {
				r.Header.Set(tt.header[0], tt.header[1])
			}
			h.ServeHTTP(httptest.NewRecorder(), r)

			if got != tt.want {
				t.Errorf("remote = %q, want %q", got, tt.want)
			}
		})
	}
}
