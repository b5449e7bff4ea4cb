// Package credentials injects per-kind authentication and ownership
// defaults into desired shares.
//
// Credential files and keys are only referenced by path; their contents are
// never read.
package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/edumarques81/sharesync/internal/config"
	"github.com/edumarques81/sharesync/internal/domain/shares"
)

// Resolver holds the defaults applied to each share kind.
type Resolver struct {
	cifs config.CIFSConfig
	ssh  config.SSHConfig
	stat func(string) (os.FileInfo, error)
}

// NewResolver returns a resolver for the given configuration.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cifs: cfg.CIFS, ssh: cfg.SSH, stat: os.Stat}
}

// Resolve returns copies of desired with defaults merged in. Options set on
// a share override defaults with the same key.
func (r *Resolver) Resolve(desired []shares.Descriptor) ([]shares.Descriptor, error) {
	kinds := make(map[shares.Kind]bool)
	for _, d := range desired {
		kinds[d.Kind] = true
	}
	if err := r.checkFiles(kinds); err != nil {
		return nil, err
	}

	out := make([]shares.Descriptor, 0, len(desired))
	for _, d := range desired {
		if err := rejectInlinePassword(d); err != nil {
			return nil, err
		}

		resolved := d
		switch d.Kind {
		case shares.KindCIFS:
			resolved.Options = shares.MergeOptions(r.cifsDefaults(), d.Options)
		case shares.KindSSH:
			resolved.Options = shares.MergeOptions(r.sshDefaults(), d.Options)
			resolved.Remote = withUser(d.Remote, r.ssh.User)
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (r *Resolver) cifsDefaults() []string {
	var opts []string
	opts = appendKV(opts, "credentials", r.cifs.CredentialsFile)
	opts = appendKV(opts, "domain", r.cifs.Domain)
	opts = appendKV(opts, "uid", r.cifs.UID)
	opts = appendKV(opts, "gid", r.cifs.GID)
	opts = appendKV(opts, "file_mode", r.cifs.FileMode)
	opts = appendKV(opts, "dir_mode", r.cifs.DirMode)
	return append(opts, r.cifs.Options...)
}

func (r *Resolver) sshDefaults() []string {
	var opts []string
	opts = appendKV(opts, "IdentityFile", r.ssh.IdentityFile)
	opts = appendKV(opts, "uid", r.ssh.UID)
	opts = appendKV(opts, "gid", r.ssh.GID)
	return append(opts, r.ssh.Options...)
}

// checkFiles verifies that referenced credential files exist for every kind
// that is actually desired.
func (r *Resolver) checkFiles(kinds map[shares.Kind]bool) error {
	if kinds[shares.KindCIFS] && r.cifs.CredentialsFile != "" {
		if _, err := r.stat(r.cifs.CredentialsFile); err != nil {
			return &shares.ConfigError{
				Field:  "cifs.credentials_file",
				Reason: fmt.Sprintf("%s is not accessible: %v", r.cifs.CredentialsFile, err),
			}
		}
	}
	if kinds[shares.KindSSH] && r.ssh.IdentityFile != "" {
		if _, err := r.stat(r.ssh.IdentityFile); err != nil {
			return &shares.ConfigError{
				Field:  "ssh.identity_file",
				Reason: fmt.Sprintf("%s is not accessible: %v", r.ssh.IdentityFile, err),
			}
		}
	}
	return nil
}

func rejectInlinePassword(d shares.Descriptor) error {
	for _, opt := range d.Options {
		key, _, _ := strings.Cut(strings.TrimSpace(opt), "=")
		if strings.EqualFold(key, "password") || strings.EqualFold(key, "pass") {
			return &shares.ConfigError{
				Field:  d.MountPoint,
				Reason: "inline passwords are not allowed, use a credentials file",
			}
		}
	}
	return nil
}

func withUser(remote, user string) string {
	if user == "" || remote == "" {
		return remote
	}
	host, _, ok := strings.Cut(remote, ":")
	if !ok || strings.Contains(host, "@") {
		return remote
	}
	return user + "@" + remote
}

func appendKV(opts []string, key, value string) []string {
	if value == "" {
		return opts
	}
	return append(opts, key+"="+value)
}
