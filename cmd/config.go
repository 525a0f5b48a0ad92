// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// EnvConfig names a profile used when --config is not given
const EnvConfig = "BMSCTL_CONFIG"

// duration decodes TOML strings like "1500ms"
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Profile mirrors the persistent flags. Zero fields leave the flag default.
type Profile struct {
	Transport string `toml:"transport"`
	Device    string `toml:"device"`

	URL         string   `toml:"url"`
	ClientID    string   `toml:"client_id"`
	PubTopic    string   `toml:"pub_topic"`
	SubTopic    string   `toml:"sub_topic"`
	Username    string   `toml:"username"`
	KeepAlive   duration `toml:"keepalive"`
	NoSSLVerify bool     `toml:"no_ssl_verify"`

	Port string `toml:"port"`
	Baud int    `toml:"baud"`

	Target  string   `toml:"target"`
	Params  string   `toml:"params"`
	Timeout duration `toml:"timeout"`

	LogLevel string `toml:"log_level"`
	Format   string `toml:"format"`
}

// ReadProfile decodes a TOML profile, rejecting unknown keys
func ReadProfile(path string) (Profile, error) {
	var p Profile
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Profile{}, bmserr.Configuration("profile %s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Profile{}, bmserr.Configuration("profile %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return p, nil
}

// flagValues renders the set fields of p keyed by flag name
func (p Profile) flagValues() map[string]string {
	out := map[string]string{}
	str := func(name, v string) {
		if v != "" {
			out[name] = v
		}
	}
	str("transport", p.Transport)
	str("device", p.Device)
	str("url", p.URL)
	str("client-id", p.ClientID)
	str("pub-topic", p.PubTopic)
	str("sub-topic", p.SubTopic)
	str("username", p.Username)
	if p.KeepAlive.Duration != 0 {
		out["keepalive"] = p.KeepAlive.String()
	}
	if p.NoSSLVerify {
		out["no-ssl-verify"] = "true"
	}
	str("port", p.Port)
	if p.Baud != 0 {
		out["baud"] = strconv.Itoa(p.Baud)
	}
	str("target", p.Target)
	str("params", p.Params)
	if p.Timeout.Duration != 0 {
		out["timeout"] = p.Timeout.String()
	}
	str("log-level", p.LogLevel)
	str("format", p.Format)
	return out
}

// applyProfile sets every flag the user did not give explicitly
func applyProfile(cmd *cobra.Command, p Profile) error {
	flags := cmd.Flags()
	for name, value := range p.flagValues() {
		if flags.Lookup(name) == nil || flags.Changed(name) {
			continue
		}
		if err := flags.Set(name, value); err != nil {
			return bmserr.Configuration("profile value for %s: %v", name, err)
		}
	}
	return nil
}

func loadProfile(cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return nil
	}
	p, err := ReadProfile(path)
	if err != nil {
		return err
	}
	return applyProfile(cmd, p)
}
