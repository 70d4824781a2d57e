package validation

import (
	"strings"
	"testing"
)

const signedSuffix = "?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Signature=deadbeef&X-Amz-Expires=900"

func TestValidateSourceStrict(t *testing.T) {
	v := NewURLValidator(TrustStrict)

	tests := []struct {
		name       string
		url        string
		wantValid  bool
		wantReason string
	}{
		{
			"virtual hosted signed pdf",
			"https://docs.s3.us-west-2.amazonaws.com/reports/q3.pdf" + signedSuffix,
			true, "",
		},
		{
			"path style signed pdf",
			"https://s3.amazonaws.com/docs/reports/q3.pdf" + signedSuffix,
			true, "",
		},
		{
			"uppercase extension",
			"https://docs.s3.amazonaws.com/Q3.PDF" + signedSuffix,
			true, "",
		},
		{
			"missing signature parameter",
			"https://docs.s3.us-west-2.amazonaws.com/reports/q3.pdf?X-Amz-Expires=900",
			false, SignatureParam,
		},
		{
			"http scheme",
			"http://docs.s3.amazonaws.com/q3.pdf" + signedSuffix,
			false, "https",
		},
		{
			"not object storage host",
			"https://evil.example.com/q3.pdf" + signedSuffix,
			false, "object-storage",
		},
		{
			"wrong extension",
			"https://docs.s3.amazonaws.com/q3.docx" + signedSuffix,
			false, ".pdf",
		},
		{
			"parent directory segment",
			"https://docs.s3.amazonaws.com/a/../b.pdf" + signedSuffix,
			false, "parent-directory",
		},
		{
			"doubled separators",
			"https://docs.s3.amazonaws.com/a//b.pdf" + signedSuffix,
			false, "doubled",
		},
		{
			"percent-encoded parent segment",
			"https://docs.s3.amazonaws.com/%2e%2e/%2e%2e/other/doc.pdf" + signedSuffix,
			false, "parent-directory",
		},
		{
			"leading doubled separator",
			"https://docs.s3.amazonaws.com//doc.pdf" + signedSuffix,
			false, "doubled",
		},
		{
			"scheme-relative garbage",
			"://nope",
			false, "",
		},
		{
			"ftp scheme",
			"ftp://docs.s3.amazonaws.com/q3.pdf" + signedSuffix,
			false, "https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateSource(tt.url)
			if res.Valid != tt.wantValid {
				t.Fatalf("ValidateSource(%q) valid = %v (%s), want %v", tt.url, res.Valid, res.Reason, tt.wantValid)
			}
			if !tt.wantValid && tt.wantReason != "" && !strings.Contains(res.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want mention of %q", res.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidateDestination(t *testing.T) {
	v := NewURLValidator(TrustStrict)

	ok := v.ValidateDestination("https://out.s3.eu-central-1.amazonaws.com/jobs/abc" + signedSuffix)
	if !ok.Valid {
		t.Errorf("expected valid destination, got %q", ok.Reason)
	}

	unsigned := v.ValidateDestination("https://out.s3.eu-central-1.amazonaws.com/jobs/abc")
	if unsigned.Valid {
		t.Error("expected unsigned destination to fail")
	}
	if !strings.Contains(unsigned.Reason, SignatureParam) {
		t.Errorf("reason = %q", unsigned.Reason)
	}
}

func TestPermissiveModeAllowsEmulator(t *testing.T) {
	v := NewURLValidator(TrustPermissive)

	tests := []struct {
		name      string
		url       string
		wantValid bool
	}{
		{"localhost http", "http://localhost:4566/docs/q3.pdf" + signedSuffix, true},
		{"loopback literal http", "http://127.0.0.1:4566/docs/q3.pdf" + signedSuffix, true},
		{"localstack prefix http", "http://localstack:4566/docs/q3.pdf" + signedSuffix, true},
		{"arbitrary host still http", "http://example.com/docs/q3.pdf" + signedSuffix, false},
		{"emulator still needs signature", "http://localhost:4566/docs/q3.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateSource(tt.url)
			if res.Valid != tt.wantValid {
				t.Errorf("ValidateSource(%q) valid = %v (%s), want %v", tt.url, res.Valid, res.Reason, tt.wantValid)
			}
		})
	}
}

func TestStrictModeRejectsEmulatorHTTP(t *testing.T) {
	v := NewURLValidator(TrustStrict)
	res := v.ValidateSource("http://localhost:4566/docs/q3.pdf" + signedSuffix)
	if res.Valid {
		t.Error("strict mode must not allow plain http, even for loopback")
	}
}

func TestValidateWebhook(t *testing.T) {
	strict := NewURLValidator(TrustStrict)
	permissive := NewURLValidator(TrustPermissive)

	tests := []struct {
		name      string
		v         *URLValidator
		url       string
		wantValid bool
	}{
		{"public https", strict, "https://hooks.example.com/done", true},
		{"any https host allowed", strict, "https://callback.acme.io/v2/notify?a=b", true},
		{"http rejected strict", strict, "http://hooks.example.com/done", false},
		{"loopback rejected strict", strict, "https://127.0.0.1/done", false},
		{"localhost rejected strict", strict, "https://localhost/done", false},
		{"private 10/8 rejected strict", strict, "https://10.1.2.3/done", false},
		{"private 172.16/12 rejected strict", strict, "https://172.16.0.9/done", false},
		{"private 192.168/16 rejected strict", strict, "https://192.168.1.1/done", false},
		{"link local rejected strict", strict, "https://169.254.1.1/done", false},
		{"loopback allowed permissive", permissive, "http://127.0.0.1:9000/done", true},
		{"empty host", strict, "https:///done", false},
		{"garbage", strict, "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.v.ValidateWebhook(tt.url)
			if res.Valid != tt.wantValid {
				t.Errorf("ValidateWebhook(%q) valid = %v (%s), want %v", tt.url, res.Valid, res.Reason, tt.wantValid)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	v := NewURLValidator(TrustStrict)

	tests := []struct {
		name       string
		url        string
		wantOK     bool
		wantBucket string
		wantRegion string
		wantKey    string
	}{
		{
			"virtual hosted with region",
			"https://docs.s3.us-west-2.amazonaws.com/reports/q3.pdf",
			true, "docs", "us-west-2", "reports/q3.pdf",
		},
		{
			"virtual hosted without region",
			"https://docs.s3.amazonaws.com/q3.pdf",
			true, "docs", DefaultRegion, "q3.pdf",
		},
		{
			"path style with region",
			"https://s3.eu-central-1.amazonaws.com/docs/reports/q3.pdf",
			true, "docs", "eu-central-1", "reports/q3.pdf",
		},
		{
			"path style without region",
			"https://s3.amazonaws.com/docs/q3.pdf",
			true, "docs", DefaultRegion, "q3.pdf",
		},
		{
			"not storage",
			"https://example.com/docs/q3.pdf",
			false, "", "", "",
		},
		{
			"path style with empty path",
			"https://s3.amazonaws.com/",
			false, "", "", "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := v.Classify(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("Classify(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if loc.Bucket != tt.wantBucket || loc.Region != tt.wantRegion || loc.Key != tt.wantKey {
				t.Errorf("Classify(%q) = %+v, want {%s %s %s}", tt.url, loc, tt.wantBucket, tt.wantRegion, tt.wantKey)
			}
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"strips signing query",
			"https://docs.s3.amazonaws.com/q3.pdf?X-Amz-Signature=secret&X-Amz-Expires=900",
			"https://docs.s3.amazonaws.com/q3.pdf",
		},
		{
			"strips fragment",
			"https://example.com/a#frag",
			"https://example.com/a",
		},
		{
			"no query unchanged",
			"https://example.com/a/b",
			"https://example.com/a/b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeURL(tt.in); got != tt.want {
				t.Errorf("SanitizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
