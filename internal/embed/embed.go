// Package embed classifies saved video URLs by hosting provider and builds
// embeddable player references for them.
// Pure string handling, no IO.
package embed

import (
	"net/url"
	"regexp"
	"strings"
)

// Provider is the external platform a saved URL belongs to.
type Provider string

const (
	ProviderNone      Provider = "none"
	ProviderYouTube   Provider = "youtube"
	ProviderInstagram Provider = "instagram"
)

// PlaceholderText is shown instead of a player when a URL cannot be embedded.
const PlaceholderText = "Invalid video URL"

const (
	youtubeEmbedBase   = "https://www.youtube.com/embed/"
	instagramEmbedBase = "https://www.instagram.com/p/"

	youtubeAllow = "accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture"
)

// instagramPostRE matches /p/<id> and /reel/<id>; the id stops at the next slash or query.
var instagramPostRE = regexp.MustCompile(`/(p|reel)/([^/?]+)`)

// Info is the classifier output. An empty ExternalID means the provider was
// recognized but no id could be extracted.
type Info struct {
	Provider   Provider `json:"provider"`
	ExternalID string   `json:"externalId,omitempty"`
}

// Classify determines the provider of rawURL and extracts its provider-native id.
// Malformed input yields ProviderNone.
func Classify(rawURL string) Info {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Info{Provider: ProviderNone}
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "youtube.com"):
		// A watch URL without v stays youtube with an empty id.
		return Info{Provider: ProviderYouTube, ExternalID: u.Query().Get("v")}
	case host == "youtu.be":
		return Info{Provider: ProviderYouTube, ExternalID: strings.TrimPrefix(u.Path, "/")}
	case host == "www.instagram.com":
		// The post pattern runs over the URL as written, not the decoded path.
		var id string
		if m := instagramPostRE.FindStringSubmatch(rawURL); m != nil {
			id = m[2]
		}
		return Info{Provider: ProviderInstagram, ExternalID: id}
	}
	return Info{Provider: ProviderNone}
}

// Renderable reports whether an embed frame can be built.
func (i Info) Renderable() bool {
	return i.Provider != ProviderNone && i.Provider != "" && i.ExternalID != ""
}

// EmbedURL returns the player URL, or "" when the info is not renderable.
func (i Info) EmbedURL() string {
	if !i.Renderable() {
		return ""
	}
	switch i.Provider {
	case ProviderYouTube:
		return youtubeEmbedBase + i.ExternalID
	case ProviderInstagram:
		return instagramEmbedBase + i.ExternalID + "/embed/"
	}
	return ""
}

// Player is everything a renderer needs to show a saved video: either an
// iframe (EmbedURL set) or the placeholder.
type Player struct {
	Info
	Title       string `json:"title"`
	EmbedURL    string `json:"embedUrl,omitempty"`
	Allow       string `json:"allow,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Resolve classifies rawURL and builds the player reference for it.
func Resolve(rawURL, title string) Player {
	info := Classify(rawURL)
	p := Player{Info: info, Title: title}
	if !info.Renderable() {
		p.Placeholder = PlaceholderText
		return p
	}
	p.EmbedURL = info.EmbedURL()
	if info.Provider == ProviderYouTube {
		p.Allow = youtubeAllow
	}
	return p
}
