package actions

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Navigator performs client-side navigation to a same-origin path
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, path string) error

func (f NavigatorFunc) Navigate(ctx context.Context, path string) error { return f(ctx, path) }

// NavigationError is a navigation target that was refused
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q rejected: %s", e.URL, e.Reason)
}

func (e *NavigationError) Unwrap() error { return protocol.ErrNavigationRejected }

// ResolveNavigation resolves raw against the current page address and
// checks it may be visited: http(s) only and the same origin as current.
// The returned path is what a client-side router expects (path, query and
// fragment).
func ResolveNavigation(current, raw string) (target *url.URL, path string, err error) {
	raw = strings.TrimSpace(raw)
	base, err := url.Parse(current)
	if err != nil {
		return nil, "", &NavigationError{URL: raw, Reason: fmt.Sprintf("invalid current address: %v", err)}
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, "", &NavigationError{URL: raw, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	target = base.ResolveReference(ref)
	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, "", &NavigationError{URL: raw, Reason: fmt.Sprintf("scheme '%s' not allowed, only http/https", target.Scheme)}
	}
	if !sameOrigin(base, target) {
		return nil, "", &NavigationError{URL: raw, Reason: fmt.Sprintf("external origin %s", origin(target))}
	}

	path = target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	if target.Fragment != "" {
		path += "#" + target.EscapedFragment()
	}
	return target, path, nil
}

func origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Hostname()) + ":" + portOf(u)
}

func sameOrigin(a, b *url.URL) bool { return origin(a) == origin(b) }

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}

func (e *Executor) navigate(ctx context.Context, c protocol.NavigateToPage) Outcome {
	target, path, err := ResolveNavigation(e.page.URL(), c.URL)
	if err != nil {
		return failed(err)
	}
	name := c.PageName
	if name == "" {
		name = path
	}

	if e.navigator != nil {
		L_debug("actions: client-side navigation", "path", path)
		err := e.navigator.Navigate(ctx, path)
		if err == nil {
			return ok("Navigated to " + name)
		}
		L_warn("actions: client-side navigation failed, loading page", "path", path, "error", err)
	}

	L_debug("actions: full page load", "url", target.String())
	if err := e.page.Load(ctx, target.String()); err != nil {
		return failed(fmt.Errorf("load %s: %w", target, err))
	}
	return ok("Navigated to " + name)
}
