package request

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/edvin/dokku-installer/internal/probe"
)

// Setup holds the form submitted by the installer page.
type Setup struct {
	Hostname string   `form:"hostname" validate:"required,max=253,hostname_rfc1123|ip"`
	Vhost    bool     `form:"vhost"`
	Keys     []string `form:"keys" validate:"required,min=1,dive,required,authorized_key"`
}

// AdminKey is one validated authorized_keys line.
type AdminKey struct {
	Line        string
	Fingerprint string
}

// DecodeSetup parses and validates a setup submission. A non-nil error is
// always the client's fault.
func DecodeSetup(r *http.Request) (*Setup, error) {
	if err := ParseForm(r); err != nil {
		return nil, err
	}
	req := &Setup{
		Hostname: strings.TrimSpace(r.PostFormValue("hostname")),
		Vhost:    r.PostFormValue("vhost") == "true",
		Keys:     probe.SplitKeys(r.PostFormValue("keys")),
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Vhost && net.ParseIP(req.Hostname) != nil {
		return nil, errors.New("virtualhost naming requires a domain name, not an IP address")
	}
	return req, nil
}

// AdminKeys returns the submitted keys with their SHA256 fingerprints.
func (s *Setup) AdminKeys() []AdminKey {
	keys := make([]AdminKey, 0, len(s.Keys))
	for _, line := range s.Keys {
		k := AdminKey{Line: line}
		if pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err == nil {
			k.Fingerprint = ssh.FingerprintSHA256(pub)
		}
		keys = append(keys, k)
	}
	return keys
}
