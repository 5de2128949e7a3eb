// Package probe gathers the facts shown on the setup page: the hostname the
// server is reachable under and the SSH keys already installed for root.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// HostnameSource records where Environment.Hostname came from.
type HostnameSource string

const (
	SourceDNS      HostnameSource = "dns"
	SourceIPLookup HostnameSource = "ip-lookup"
	SourceUnset    HostnameSource = "unset"
)

// Environment is the probed host state. It is computed once at startup and
// never modified.
type Environment struct {
	Hostname       string
	HostnameSource HostnameSource
	// KeyFile is the authorized_keys file that was read, or the first
	// candidate when none existed.
	KeyFile string
	Keys    []string
}

// Options configure a Prober.
type Options struct {
	KeyFiles    []string
	IPLookupURL string
	// ResolvConf is the resolver configuration used for the DNS probe.
	ResolvConf string
	// DNSServer ("host:port") bypasses ResolvConf when set.
	DNSServer string
	Timeout    time.Duration
}

// Prober resolves an Environment. The lookups are overridable for tests.
type Prober struct {
	logger zerolog.Logger
	opts   Options
	client *http.Client

	localHostname func() (string, error)
	resolves      func(ctx context.Context, name string) (bool, error)
}

// New creates a Prober with real DNS and HTTP lookups.
func New(logger zerolog.Logger, opts Options) *Prober {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.ResolvConf == "" {
		opts.ResolvConf = "/etc/resolv.conf"
	}
	p := &Prober{
		logger:        logger.With().Str("component", "probe").Logger(),
		opts:          opts,
		client:        &http.Client{Timeout: opts.Timeout},
		localHostname: os.Hostname,
	}
	p.resolves = p.dnsResolves
	return p
}

// Probe never fails: every lookup error leaves the corresponding field empty.
func (p *Prober) Probe(ctx context.Context) Environment {
	env := Environment{HostnameSource: SourceUnset}

	hostname, source := p.hostname(ctx)
	if strings.Contains(hostname, ":") {
		p.logger.Debug().Str("hostname", hostname).Msg("discarding IPv6 address as hostname")
		hostname, source = "", SourceUnset
	}
	env.Hostname = hostname
	if hostname != "" {
		env.HostnameSource = source
	}

	env.KeyFile, env.Keys = p.keys()

	p.logger.Info().
		Str("hostname", env.Hostname).
		Str("hostname_source", string(env.HostnameSource)).
		Str("key_file", env.KeyFile).
		Int("keys", len(env.Keys)).
		Msg("probed environment")

	return env
}

// hostname returns the machine hostname when it resolves in DNS, and the
// public IP address reported by the lookup service otherwise.
func (p *Prober) hostname(ctx context.Context) (string, HostnameSource) {
	if name, err := p.localHostname(); err == nil && name != "" {
		ok, err := p.resolves(ctx, name)
		if err != nil {
			p.logger.Debug().Err(err).Str("hostname", name).Msg("dns lookup failed")
		}
		if ok {
			return name, SourceDNS
		}
	}

	ip, err := p.lookupIP(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("public ip lookup failed")
		return "", SourceUnset
	}
	return ip, SourceIPLookup
}

func (p *Prober) nameserver() (string, error) {
	if p.opts.DNSServer != "" {
		return p.opts.DNSServer, nil
	}
	conf, err := dns.ClientConfigFromFile(p.opts.ResolvConf)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p.opts.ResolvConf, err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", p.opts.ResolvConf)
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

func (p *Prober) dnsResolves(ctx context.Context, name string) (bool, error) {
	server, err := p.nameserver()
	if err != nil {
		return false, err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: p.opts.Timeout}

	in, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", server, err)
	}
	for _, rr := range in.Answer {
		if _, ok := rr.(*dns.A); ok {
			return true, nil
		}
	}
	return false, nil
}

func (p *Prober) lookupIP(ctx context.Context) (string, error) {
	if p.opts.IPLookupURL == "" {
		return "", fmt.Errorf("no ip lookup url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.IPLookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", p.opts.IPLookupURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: status %d", p.opts.IPLookupURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// keys reads the first existing key file. When none exists the first
// candidate is reported so the page can show where keys were expected.
func (p *Prober) keys() (string, []string) {
	if len(p.opts.KeyFiles) == 0 {
		return "", nil
	}

	for _, path := range p.opts.KeyFiles {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", path).Msg("cannot read key file")
			return path, nil
		}
		return path, SplitKeys(string(data))
	}
	return p.opts.KeyFiles[0], nil
}

// SplitKeys splits authorized_keys style text into trimmed, non-empty lines.
// Lines of any length are kept.
func SplitKeys(text string) []string {
	var keys []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, line)
		}
	}
	return keys
}
