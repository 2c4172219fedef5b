package sshauth

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy selects how the server's host key is checked
type HostKeyPolicy string

const (
	// PolicyStrict checks host name and key against known_hosts
	PolicyStrict HostKeyPolicy = "strict"
	// PolicyHostnameInsensitive accepts any key listed in known_hosts regardless of host name
	PolicyHostnameInsensitive HostKeyPolicy = "hostname-insensitive"
	// PolicyInsecure accepts any key
	PolicyInsecure HostKeyPolicy = "insecure"
)

// Options describes the SSH identity and host verification to use
type Options struct {
	User          string
	KeyFile       string
	Key           string
	Passphrase    string
	KnownHosts    string
	HostKeyPolicy HostKeyPolicy
	Timeout       time.Duration
}

// Signer loads the private key, preferring inline key material over the key file
func Signer(opts Options) (ssh.Signer, error) {
	pemBytes := []byte(opts.Key)
	if len(pemBytes) == 0 {
		if opts.KeyFile == "" {
			return nil, fmt.Errorf("no private key configured")
		}
		data, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		pemBytes = data
	}

	if opts.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(opts.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key is encrypted but no passphrase is configured")
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// HostKeyCallback builds the verification callback for the configured policy
func HostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	switch opts.HostKeyPolicy {
	case PolicyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil
	case PolicyHostnameInsensitive:
		keys, err := loadKnownKeys(opts.KnownHosts)
		if err != nil {
			return nil, err
		}
		return anyKnownKey(keys), nil
	case PolicyStrict, "":
		if opts.KnownHosts == "" {
			return nil, fmt.Errorf("strict host key checking needs a known_hosts file")
		}
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		return cb, nil
	default:
		return nil, fmt.Errorf("unknown host key policy %q", opts.HostKeyPolicy)
	}
}

// ClientConfig builds the configuration for the command channel
func ClientConfig(opts Options) (*ssh.ClientConfig, error) {
	signer, err := Signer(opts)
	if err != nil {
		return nil, err
	}
	cb, err := HostKeyCallback(opts)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            opts.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: cb,
		Timeout:         opts.Timeout,
	}, nil
}

// GitAuth builds the go-git transport auth sharing the same identity and host policy
func GitAuth(opts Options) (*gitssh.PublicKeys, error) {
	signer, err := Signer(opts)
	if err != nil {
		return nil, err
	}
	cb, err := HostKeyCallback(opts)
	if err != nil {
		return nil, err
	}
	return &gitssh.PublicKeys{
		User:   opts.User,
		Signer: signer,
		HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
			HostKeyCallback: cb,
		},
	}, nil
}

func loadKnownKeys(path string) ([]ssh.PublicKey, error) {
	if path == "" {
		return nil, fmt.Errorf("host key checking needs a known_hosts file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	var keys []ssh.PublicKey
	for len(data) > 0 {
		marker, _, key, _, rest, err := ssh.ParseKnownHosts(data)
		if err != nil {
			// io.EOF once only comments or blank lines remain
			break
		}
		if marker != "@revoked" {
			keys = append(keys, key)
		}
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no host keys found in %s", path)
	}
	return keys, nil
}

func anyKnownKey(keys []ssh.PublicKey) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		presented := key.Marshal()
		for _, k := range keys {
			if bytes.Equal(k.Marshal(), presented) {
				return nil
			}
		}
		return fmt.Errorf("host key %s for %s is not in known_hosts", ssh.FingerprintSHA256(key), hostname)
	}
}
