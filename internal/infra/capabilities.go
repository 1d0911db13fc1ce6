package infra

import (
	"bytes"
	"crypto/rand"
	"io"
	"net/url"

	"golang.org/x/crypto/nacl/secretbox"
)

// Capabilities records which optional features are usable in this process.
// It is computed once at startup and passed to the components that need it.
type Capabilities struct {
	EncryptionAvailable bool `json:"encryption_available"`
	ChatClientAvailable bool `json:"chat_client_available"`
}

// ProbeCapabilities inspects the runtime and configuration.
func ProbeCapabilities(cfg *Config) Capabilities {
	caps := Capabilities{
		EncryptionAvailable: probeEncryption(rand.Reader),
		ChatClientAvailable: probeChatEndpoint(cfg.ChatBaseURL),
	}
	if !cfg.TokenEncryption {
		caps.EncryptionAvailable = false
	}
	return caps
}

// probeEncryption seals and opens a sample payload with a fresh key.
func probeEncryption(random io.Reader) bool {
	var key [32]byte
	var nonce [24]byte
	if _, err := io.ReadFull(random, key[:]); err != nil {
		return false
	}
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return false
	}
	sample := []byte("probe")
	sealed := secretbox.Seal(nil, sample, &nonce, &key)
	opened, ok := secretbox.Open(nil, sealed, &nonce, &key)
	return ok && bytes.Equal(opened, sample)
}

func probeChatEndpoint(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
