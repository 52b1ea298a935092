package httpdriver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const quotePage = `<!DOCTYPE html>
<html>
<head>
<title>BTC-USD 45,250.75 | Quotes</title>
<meta itemprop="price" content="45250.75">
<script>
window.__QUOTE_DATA__ = {"symbol":"BTC-USD","price":45250.75,"changePercent":1.25};
var sessionId = "abc-123";
</script>
</head>
<body>
<h1>Bitcoin</h1>
<span data-field="last-price">$45,250.75</span>
<span class="change-percent">(+1.25%)</span>
<div><p>24h volume 1,234,567</p></div>
<style>.price { color: green; }</style>
</body>
</html>`

func servePage(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openPage(t *testing.T, url string) *Page {
	t.Helper()

	d := New(5 * time.Second)
	handle, err := d.Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle.(*Page)
}

func TestOpen_RejectsBadAddresses(t *testing.T) {
	d := New(time.Second)

	tests := []struct {
		name string
		url  string
	}{
		{"bad scheme", "ftp://example.com/q/BTCUSD"},
		{"no scheme", "example.com/q/BTCUSD"},
		{"unparseable", "http://exa mple.com/%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Open(context.Background(), tt.url); err == nil {
				t.Errorf("Open(%q) error = nil, want error", tt.url)
			}
		})
	}
}

func TestOpen_FailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(time.Second)
	if _, err := d.Open(context.Background(), srv.URL); err == nil {
		t.Error("Open() error = nil for 404 page, want error")
	}
}

func TestOpen_FailsOnUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // deliberately closed before Open

	d := New(time.Second)
	if _, err := d.Open(context.Background(), srv.URL); err == nil {
		t.Error("Open() error = nil for unreachable host, want error")
	}
}

func TestReadField(t *testing.T) {
	srv := servePage(t, quotePage)
	p := openPage(t, srv.URL)
	ctx := context.Background()

	tests := []struct {
		name     string
		selector string
		want     string
		ok       bool
	}{
		{"data field", `[data-field="last-price"]`, "$45,250.75", true},
		{"class", ".change-percent", "(+1.25%)", true},
		{"meta content attribute", `meta[itemprop="price"]`, "45250.75", true},
		{"absent", ".does-not-exist", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.ReadField(ctx, tt.selector)
			if ok != tt.ok {
				t.Fatalf("ReadField(%q) ok = %v, want %v", tt.selector, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ReadField(%q) = %q, want %q", tt.selector, got, tt.want)
			}
		})
	}
}

func TestEvaluateScript(t *testing.T) {
	srv := servePage(t, quotePage)
	p := openPage(t, srv.URL)
	ctx := context.Background()

	raw, ok := p.EvaluateScript(ctx, "__QUOTE_DATA__")
	if !ok {
		t.Fatal("EvaluateScript(__QUOTE_DATA__) ok = false, want true")
	}
	if !strings.HasPrefix(raw, "{") || !strings.Contains(raw, `"price":45250.75`) {
		t.Errorf("EvaluateScript(__QUOTE_DATA__) = %q, want the data object", raw)
	}

	scalar, ok := p.EvaluateScript(ctx, "sessionId")
	if !ok || scalar != "abc-123" {
		t.Errorf("EvaluateScript(sessionId) = (%q, %v), want (abc-123, true)", scalar, ok)
	}

	if _, ok := p.EvaluateScript(ctx, "missingProbe"); ok {
		t.Error("EvaluateScript(missingProbe) ok = true, want false")
	}
}

func TestText_SkipsScriptAndStyle(t *testing.T) {
	srv := servePage(t, quotePage)
	p := openPage(t, srv.URL)

	nodes := p.Text(context.Background())
	joined := strings.Join(nodes, "\n")

	for _, want := range []string{"Bitcoin", "$45,250.75", "24h volume 1,234,567"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Text() missing %q\nGot: %s", want, joined)
		}
	}
	for _, reject := range []string{"__QUOTE_DATA__", "color: green"} {
		if strings.Contains(joined, reject) {
			t.Errorf("Text() leaked %q from script/style", reject)
		}
	}
}

func TestTitle(t *testing.T) {
	srv := servePage(t, quotePage)
	p := openPage(t, srv.URL)

	got := p.Title(context.Background())
	want := "BTC-USD 45,250.75 | Quotes"
	if got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}
}

func TestRefresh_PicksUpNewContent(t *testing.T) {
	var version atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if version.Load() == 0 {
			_, _ = w.Write([]byte(`<html><body><span class="price">100.00</span></body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><body><span class="price">101.00</span></body></html>`))
	}))
	defer srv.Close()

	p := openPage(t, srv.URL)
	ctx := context.Background()

	if got, _ := p.ReadField(ctx, ".price"); got != "100.00" {
		t.Fatalf("ReadField() = %q, want 100.00", got)
	}

	version.Store(1)
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got, _ := p.ReadField(ctx, ".price"); got != "101.00" {
		t.Errorf("ReadField() after refresh = %q, want 101.00", got)
	}
}

func TestRefresh_HonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	d := New(50 * time.Millisecond)
	if _, err := d.Open(context.Background(), srv.URL); err == nil {
		t.Error("Open() error = nil for slow server, want timeout")
	}
}

func TestClose_ReadsReportAbsence(t *testing.T) {
	srv := servePage(t, quotePage)
	p := openPage(t, srv.URL)
	ctx := context.Background()

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := p.ReadField(ctx, ".change-percent"); ok {
		t.Error("ReadField() ok = true after Close, want false")
	}
	if nodes := p.Text(ctx); nodes != nil {
		t.Errorf("Text() = %v after Close, want nil", nodes)
	}
	if title := p.Title(ctx); title != "" {
		t.Errorf("Title() = %q after Close, want empty", title)
	}
}

func TestScriptValue(t *testing.T) {
	tests := []struct {
		name   string
		script string
		probe  string
		want   string
		ok     bool
	}{
		{
			name:   "json assignment",
			script: `window.__DATA__ = {"price": 10.5};`,
			probe:  "__DATA__",
			want:   `{"price": 10.5}`,
			ok:     true,
		},
		{
			name:   "colon form",
			script: `{"quoteData": {"last": 99}}`,
			probe:  "quoteData",
			want:   `{"last": 99}`,
			ok:     true,
		},
		{
			name:   "nested braces",
			script: `var d = {"a": {"b": 1}, "c": 2}; more();`,
			probe:  "d",
			want:   `{"a": {"b": 1}, "c": 2}`,
			ok:     true,
		},
		{
			name:   "scalar to semicolon",
			script: `var lastPrice = 42.5; var other = 1;`,
			probe:  "lastPrice",
			want:   "42.5",
			ok:     true,
		},
		{
			name:   "quoted scalar",
			script: `price = "12.34"` + "\n" + `next = 1`,
			probe:  "price",
			want:   "12.34",
			ok:     true,
		},
		{
			name:   "absent probe",
			script: `var unrelated = 1;`,
			probe:  "__DATA__",
			ok:     false,
		},
		{
			name:   "probe without assignment",
			script: `// mentions __DATA__ in a comment only`,
			probe:  "__DATA__",
			ok:     false,
		},
		{
			name:   "unbalanced object",
			script: `window.__DATA__ = {"price": 10.5`,
			probe:  "__DATA__",
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scriptValue(tt.script, tt.probe)
			if ok != tt.ok {
				t.Fatalf("scriptValue() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("scriptValue() = %q, want %q", got, tt.want)
			}
		})
	}
}
