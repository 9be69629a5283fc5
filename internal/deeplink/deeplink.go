// Package deeplink recognises the app's inbound links and builds share links.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Link kinds.
const (
	KindResetPassword = "reset_password"
	KindPost          = "post"
)

// ErrUnsupportedLink is returned for links the app does not route.
var ErrUnsupportedLink = errors.New("unsupported deep link")

// Link is a parsed in-app destination.
type Link struct {
	Kind   string
	PostID uint
	Params map[string]string
}

// Resolver parses links for one custom scheme and one web host.
type Resolver struct {
	scheme  string
	webHost string
}

// NewResolver builds a resolver; webHost may be empty to disable https links.
func NewResolver(scheme, webHost string) *Resolver {
	return &Resolver{
		scheme:  strings.ToLower(strings.TrimSuffix(strings.TrimSpace(scheme), "://")),
		webHost: strings.ToLower(strings.TrimSpace(webHost)),
	}
}

// Parse recognises <scheme>://reset-password?... and <scheme>://post/{id} plus their https forms.
func (r *Resolver) Parse(raw string) (Link, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrUnsupportedLink, err)
	}

	var segments []string
	switch strings.ToLower(parsed.Scheme) {
	case r.scheme:
		// custom schemes put the first segment in the host position
		segments = append([]string{parsed.Host}, splitPath(parsed.Path)...)
	case "https", "http":
		if r.webHost == "" || !strings.EqualFold(parsed.Hostname(), r.webHost) {
			return Link{}, ErrUnsupportedLink
		}
		segments = splitPath(parsed.Path)
	default:
		return Link{}, ErrUnsupportedLink
	}

	if len(segments) == 0 || segments[0] == "" {
		return Link{}, ErrUnsupportedLink
	}

	switch strings.ToLower(segments[0]) {
	case "reset-password":
		params := make(map[string]string)
		for key, values := range parsed.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		// auth providers deliver recovery tokens in the fragment
		if fragment, err := url.ParseQuery(parsed.Fragment); err == nil {
			for key, values := range fragment {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
		return Link{Kind: KindResetPassword, Params: params}, nil
	case "post":
		if len(segments) != 2 {
			return Link{}, ErrUnsupportedLink
		}
		id, err := strconv.ParseUint(segments[1], 10, 64)
		if err != nil || id == 0 {
			return Link{}, fmt.Errorf("%w: invalid post id %q", ErrUnsupportedLink, segments[1])
		}
		return Link{Kind: KindPost, PostID: uint(id)}, nil
	default:
		return Link{}, ErrUnsupportedLink
	}
}

// PostURL builds the share link for a post, preferring the web host when configured.
func (r *Resolver) PostURL(postID uint) string {
	if r.webHost != "" {
		return fmt.Sprintf("https://%s/post/%d", r.webHost, postID)
	}
	return fmt.Sprintf("%s://post/%d", r.scheme, postID)
}

// ResetPasswordURL is the redirect target handed to the auth provider.
func (r *Resolver) ResetPasswordURL() string {
	return r.scheme + "://reset-password"
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
