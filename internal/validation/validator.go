// Package validation classifies and validates untrusted URLs before any I/O
// touches them. All checks degrade to an invalid Result with a reason; they
// never panic on malformed input.
package validation

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// TrustMode selects between hardened production rules and relaxed
// local-testing rules. It is threaded explicitly instead of being read from
// the environment at check time.
type TrustMode string

const (
	TrustStrict     TrustMode = "strict"
	TrustPermissive TrustMode = "permissive"
)

// SignatureParam is the query parameter proving server-side signing of an
// object-storage URL. Its absence fails validation even when host and scheme
// are otherwise correct.
const SignatureParam = "X-Amz-Signature"

// SourceExtension is the only document extension accepted as a source.
const SourceExtension = ".pdf"

// DefaultRegion is assumed when the hostname carries no region label.
const DefaultRegion = "us-east-1"

// localEmulatorPrefix marks hostnames belonging to a local object-storage
// emulator, tolerated over plain http in permissive mode only.
const localEmulatorPrefix = "localstack"

// Result is the outcome of one validation check.
type Result struct {
	Valid  bool
	Reason string
}

func invalid(reason string) Result { return Result{Reason: reason} }

var valid = Result{Valid: true}

// StorageLocation describes a recognized object-storage URL.
type StorageLocation struct {
	Bucket string
	Region string
	Key    string
}

var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)

// URLValidator applies TrustMode-dependent rules to sources, destinations and
// webhook targets.
type URLValidator struct {
	mode TrustMode
}

func NewURLValidator(mode TrustMode) *URLValidator {
	if mode != TrustPermissive {
		mode = TrustStrict
	}
	return &URLValidator{mode: mode}
}

// Mode returns the trust mode the validator was built with.
func (v *URLValidator) Mode() TrustMode { return v.mode }

// ValidateSource checks a signed object-storage GET URL naming a PDF.
func (v *URLValidator) ValidateSource(raw string) Result {
	u, res := v.parseStorageURL(raw)
	if !res.Valid {
		return res
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), SourceExtension) {
		return invalid("source must reference a " + SourceExtension + " document")
	}
	return valid
}

// ValidateDestination checks a signed object-storage PUT base URL.
func (v *URLValidator) ValidateDestination(raw string) Result {
	_, res := v.parseStorageURL(raw)
	return res
}

// ValidateWebhook checks a callback target. Object-storage host rules do not
// apply, but scheme rules do, and outside permissive mode loopback and
// private-range hosts are rejected.
func (v *URLValidator) ValidateWebhook(raw string) Result {
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("webhook is not a valid URL")
	}
	if res := v.checkScheme(u); !res.Valid {
		return res
	}
	if u.Hostname() == "" {
		return invalid("webhook has no host")
	}
	if v.mode == TrustStrict && isLocalOrPrivateHost(u.Hostname()) {
		return invalid("webhook host resolves to a loopback or private address")
	}
	return valid
}

// Classify parses an object-storage URL into bucket, region and key. The
// second return is false when the host matches no recognized storage pattern.
func (v *URLValidator) Classify(raw string) (*StorageLocation, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return classifyHost(u, v.mode)
}

func (v *URLValidator) parseStorageURL(raw string) (*url.URL, Result) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalid("not a valid URL")
	}
	if res := v.checkScheme(u); !res.Valid {
		return nil, res
	}
	if res := checkPath(u); !res.Valid {
		return nil, res
	}
	if _, ok := classifyHost(u, v.mode); !ok {
		return nil, invalid("host is not a recognized object-storage endpoint")
	}
	if u.Query().Get(SignatureParam) == "" {
		return nil, invalid("missing " + SignatureParam + " query parameter")
	}
	return u, valid
}

func (v *URLValidator) checkScheme(u *url.URL) Result {
	switch u.Scheme {
	case "https":
		return valid
	case "http":
		if v.mode == TrustPermissive && isEmulatorHost(u.Hostname()) {
			return valid
		}
		return invalid("scheme must be https")
	default:
		return invalid("scheme must be https")
	}
}

func checkPath(u *url.URL) Result {
	// u.Path is the decoded form, so percent-encoded dot segments are
	// caught here too. An absolute path carries exactly one leading slash,
	// which makes any "//" a doubled separator.
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." {
			return invalid("path contains a parent-directory segment")
		}
	}
	if strings.Contains(u.Path, "//") {
		return invalid("path contains doubled separators")
	}
	return valid
}

func classifyHost(u *url.URL, mode TrustMode) (*StorageLocation, bool) {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, false
	}

	if mode == TrustPermissive && isEmulatorHost(host) {
		// Emulators are addressed path-style: first segment is the bucket.
		bucket, key := splitFirstSegment(u.Path)
		if bucket == "" {
			return nil, false
		}
		return &StorageLocation{Bucket: bucket, Region: DefaultRegion, Key: key}, true
	}

	labels := strings.Split(host, ".")
	s3idx := -1
	for i, l := range labels {
		if l == "s3" {
			s3idx = i
			break
		}
	}
	if s3idx < 0 || s3idx > 1 || len(labels) < s3idx+2 {
		return nil, false
	}

	region := DefaultRegion
	if regionPattern.MatchString(labels[s3idx+1]) {
		region = labels[s3idx+1]
	}

	if s3idx == 0 {
		// Path-style: bucket is the first path segment.
		bucket, key := splitFirstSegment(u.Path)
		if bucket == "" {
			return nil, false
		}
		return &StorageLocation{Bucket: bucket, Region: region, Key: key}, true
	}

	// Virtual-hosted style: bucket is the leftmost hostname label.
	return &StorageLocation{
		Bucket: labels[0],
		Region: region,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}, true
}

func splitFirstSegment(path string) (first, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func isEmulatorHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasPrefix(host, localEmulatorPrefix) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}

func isLocalOrPrivateHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}
	return false
}

// SanitizeURL strips the query string and fragment so signing credentials
// never reach logs. Unparseable input passes through unchanged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
