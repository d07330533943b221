// Package clientconf derives the shareable client connection profile from
// the Installation Record.
package clientconf

import (
	"encoding/json"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/net2share/jtm/internal/record"
)

// Profile is a NekoRay-style juicity client configuration. It is a pure
// function of the Installation Record and carries every parameter the
// server config was written with.
type Profile struct {
	Server            string `json:"server"`
	Listen            string `json:"listen"`
	UUID              string `json:"uuid"`
	Password          string `json:"password"`
	SNI               string `json:"sni,omitempty"`
	AllowInsecure     bool   `json:"allow_insecure"`
	CongestionControl string `json:"congestion_control"`
	LogLevel          string `json:"log_level"`
}

// FromRecord derives the client profile from an active record.
func FromRecord(r *record.Record) (*Profile, error) {
	if r == nil {
		return nil, errors.New("no installation record")
	}
	if r.ServerIP == "" || r.ListenPort == 0 {
		return nil, errors.New("record is missing connection parameters")
	}
	if r.Credentials.UUID == "" || r.Credentials.Password == "" {
		return nil, errors.New("record is missing credentials")
	}

	return &Profile{
		Server:            fmt.Sprintf("%s:%d", r.ServerIP, r.ListenPort),
		Listen:            "127.0.0.1:%socks_port%",
		UUID:              r.Credentials.UUID,
		Password:          r.Credentials.Password,
		SNI:               r.Domain,
		AllowInsecure:     false,
		CongestionControl: "bbr",
		LogLevel:          "info",
	}, nil
}

// JSON renders the profile as an indented document.
func (p *Profile) JSON() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ShareLink renders the juicity:// subscription link.
func (p *Profile) ShareLink() string {
	insecure := 0
	if p.AllowInsecure {
		insecure = 1
	}

	link := fmt.Sprintf("juicity://%s:%s@%s?congestion_control=%s&allow_insecure=%d",
		p.UUID, p.Password, p.Server, p.CongestionControl, insecure)
	if p.SNI != "" {
		link += "&sni=" + p.SNI
	}
	return link
}

// QR renders the share link as a terminal QR code.
func (p *Profile) QR() (string, error) {
	qr, err := qrcode.New(p.ShareLink(), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to build QR code: %w", err)
	}
	return qr.ToSmallString(false), nil
}
