package proxypool

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Supported proxy schemes. The zero Scheme means HTTP.
const (
	SchemeHTTP   = "http"
	SchemeSOCKS5 = "socks5"
)

// Proxy is a single authenticated proxy endpoint. Immutable value; lease
// state and failure counters live in the Pool, not here.
type Proxy struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

func (p Proxy) scheme() string {
	if p.Scheme == "" {
		return SchemeHTTP
	}
	return p.Scheme
}

// ID is the pool key for this proxy.
func (p Proxy) ID() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL builds the proxy URL with credentials, suitable for http.ProxyURL.
func (p Proxy) URL() *url.URL {
	u := &url.URL{
		Scheme: p.scheme(),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// String returns the redacted form, safe for logs.
func (p Proxy) String() string {
	return p.ID()
}

// Line returns the full host:port:username:password form, the inverse of
// ParseLine, with a scheme prefix for non-HTTP proxies. Used where the
// proxy must be reconstructible, e.g. account records; never log it.
func (p Proxy) Line() string {
	line := fmt.Sprintf("%s:%d:%s:%s", p.Host, p.Port, p.Username, p.Password)
	if p.Scheme == SchemeSOCKS5 {
		return SchemeSOCKS5 + "://" + line
	}
	return line
}

// ParseLine parses a "host:port:username:password" proxy line, optionally
// prefixed with a scheme ("socks5://host:port:username:password"). HTTP is
// the default and carries no prefix in canonical form. The password may
// itself contain ':'.
func ParseLine(line string) (Proxy, error) {
	line = strings.TrimSpace(line)

	scheme := ""
	if head, rest, found := strings.Cut(line, "://"); found {
		switch head {
		case SchemeHTTP:
		case SchemeSOCKS5:
			scheme = SchemeSOCKS5
		default:
			return Proxy{}, fmt.Errorf("unsupported proxy scheme %q", head)
		}
		line = rest
	}

	parts := strings.SplitN(line, ":", 4)
	if len(parts) != 4 {
		return Proxy{}, fmt.Errorf("invalid proxy line, want host:port:username:password")
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return Proxy{}, fmt.Errorf("invalid proxy port %q", parts[1])
	}
	if parts[0] == "" || parts[2] == "" {
		return Proxy{}, fmt.Errorf("host and username must be non-empty")
	}

	return Proxy{
		Scheme:   scheme,
		Host:     parts[0],
		Port:     port,
		Username: parts[2],
		Password: parts[3],
	}, nil
}

// LoadFile reads a proxy list file, one proxy per line. Malformed lines are
// reported but do not abort the load.
func LoadFile(path string) ([]Proxy, []error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer file.Close()

	var proxies []Proxy
	var lineErrs []error
	lineNum := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p, err := ParseLine(line)
		if err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return proxies, lineErrs, nil
}
