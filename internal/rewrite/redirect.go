package rewrite

import (
	"net/http"
	"net/url"
)

// RedirectRule translates redirects aimed at a backend-local loopback address
// into the publicly routable port-<port>-<scope> hostname. Backends issue
// these because they believe they are serving 127.0.0.1 directly; the scope
// is not derivable from the loopback address, so it comes from the request's
// routing context.
type RedirectRule struct{}

func (r *RedirectRule) Name() string { return "redirect" }

func (r *RedirectRule) Matches(resp *http.Response) bool {
	return resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != ""
}

func (r *RedirectRule) Apply(rctx Context, resp *http.Response) (bool, error) {
	loc := resp.Header.Get("Location")
	rewritten, changed := rewriteLoopbackLocation(loc, rctx)
	if changed {
		resp.Header.Set("Location", rewritten)
	}
	return changed, nil
}

// rewriteLoopbackLocation rewrites an absolute loopback Location carrying an
// explicit port. Relative, non-loopback, or portless Locations pass through.
func rewriteLoopbackLocation(location string, rctx Context) (string, bool) {
	if rctx.Scope == "" {
		return location, false
	}

	u, err := url.Parse(location)
	if err != nil || !u.IsAbs() {
		return location, false
	}
	if !isLoopbackHost(u.Hostname()) || u.Port() == "" {
		return location, false
	}

	u.Scheme = "https"
	u.Host = "port-" + u.Port() + "-" + rctx.Scope + "." + rctx.PublicSuffix
	return u.String(), true
}

func isLoopbackHost(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}
