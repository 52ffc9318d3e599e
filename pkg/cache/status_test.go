package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestInspect(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		header     http.Header
		wantLabel  string
		wantSource string
		wantAge    time.Duration
	}{
		{
			name:      "no cache headers",
			header:    http.Header{},
			wantLabel: "unknown",
		},
		{
			name:       "x-cache hit",
			header:     http.Header{"X-Cache": []string{"HIT"}},
			wantLabel:  "hit",
			wantSource: "X-Cache",
		},
		{
			name:       "cloudflare miss",
			header:     http.Header{"Cf-Cache-Status": []string{"MISS"}},
			wantLabel:  "miss",
			wantSource: "CF-Cache-Status",
		},
		{
			name:       "combined fastly value",
			header:     http.Header{"X-Cache": []string{"MISS, HIT"}},
			wantLabel:  "hit",
			wantSource: "X-Cache",
		},
		{
			name:       "miss marker wins over age",
			header:     http.Header{"X-Cache": []string{"Miss from cloudfront"}, "Age": []string{"30"}},
			wantLabel:  "miss",
			wantSource: "X-Cache",
			wantAge:    30 * time.Second,
		},
		{
			name:       "age only",
			header:     http.Header{"Age": []string{"42"}},
			wantLabel:  "hit",
			wantSource: "Age",
			wantAge:    42 * time.Second,
		},
		{
			name:      "zero age",
			header:    http.Header{"Age": []string{"0"}},
			wantLabel: "unknown",
		},
		{
			name:      "garbage age",
			header:    http.Header{"Age": []string{"soon"}},
			wantLabel: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Inspect(&http.Response{StatusCode: 200, Header: tt.header}, now)

			if got := status.Label(); got != tt.wantLabel {
				t.Errorf("Label() = %q, want %q", got, tt.wantLabel)
			}
			if status.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", status.Source, tt.wantSource)
			}
			if status.Age != tt.wantAge {
				t.Errorf("Age = %v, want %v", status.Age, tt.wantAge)
			}
		})
	}
}

func TestInspect_NilResponse(t *testing.T) {
	status := Inspect(nil, time.Now())
	if status.Known || status.Hit {
		t.Errorf("Inspect(nil) = %+v, want zero status", status)
	}
}

func TestInspect_Freshness(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		header  http.Header
		wantTTL time.Duration
	}{
		{
			name:    "max-age",
			header:  http.Header{"Cache-Control": []string{"public, max-age=300"}},
			wantTTL: 300 * time.Second,
		},
		{
			name:    "s-maxage preferred",
			header:  http.Header{"Cache-Control": []string{"max-age=60, s-maxage=600"}},
			wantTTL: 600 * time.Second,
		},
		{
			name:    "max-age minus age",
			header:  http.Header{"Cache-Control": []string{"max-age=300"}, "Age": []string{"100"}},
			wantTTL: 200 * time.Second,
		},
		{
			name:    "expires header",
			header:  http.Header{"Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			wantTTL: time.Hour,
		},
		{
			name:    "max-age beats expires",
			header:  http.Header{"Cache-Control": []string{"max-age=10"}, "Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			wantTTL: 10 * time.Second,
		},
		{
			name:    "invalid expires",
			header:  http.Header{"Expires": []string{"0"}},
			wantTTL: 0,
		},
		{
			name:    "past expires",
			header:  http.Header{"Expires": []string{now.Add(-time.Hour).Format(http.TimeFormat)}},
			wantTTL: 0,
		},
		{
			name:    "no freshness",
			header:  http.Header{"Cache-Control": []string{"no-cache"}},
			wantTTL: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Inspect(&http.Response{Header: tt.header}, now)
			if got := status.TTL(now); got != tt.wantTTL {
				t.Errorf("TTL() = %v, want %v", got, tt.wantTTL)
			}
		})
	}
}

func TestInspect_Validators(t *testing.T) {
	lastMod := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
	header := http.Header{
		"Etag":          []string{`"abc123"`},
		"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
	}

	status := Inspect(&http.Response{Header: header}, time.Now())

	if status.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want \"abc123\"", status.ETag)
	}
	if !status.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", status.LastModified, lastMod)
	}
}

func TestObserve(t *testing.T) {
	// must not panic for any status
	Observe(Status{})
	Observe(Status{Known: true})
	Observe(Status{Known: true, Hit: true, Age: time.Minute})
}
