// Package cookies resolves the X (Twitter) session cookies used to fetch
// tweets: auth_token and ct0.
package cookies

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Browser names a cookie store.
type Browser string

const (
	Chrome  Browser = "chrome"
	Safari  Browser = "safari"
	Firefox Browser = "firefox"
)

// DefaultSources is the browser order used when none is configured.
var DefaultSources = []Browser{Chrome, Safari, Firefox}

var (
	cookieNames = []string{"auth_token", "ct0"}
	origins     = []string{"https://x.com", "https://twitter.com"}
)

var (
	authTokenKeys = []string{"AUTH_TOKEN", "TWITTER_AUTH_TOKEN"}
	ct0Keys       = []string{"CT0", "TWITTER_CT0"}
)

const (
	missingAuthToken = "Missing auth_token - provide via AUTH_TOKEN env var, or login to x.com in Safari/Chrome/Firefox"
	missingCT0       = "Missing ct0 - provide via CT0 env var, or login to x.com in Safari/Chrome/Firefox"
)

// EnvConfig is the cookie-related environment, read once at startup.
type EnvConfig struct {
	AuthToken      string
	AuthTokenKey   string
	CT0            string
	CT0Key         string
	Sources        []Browser
	ChromeProfile  string
	FirefoxProfile string
	// Warnings from parsing TWITTER_COOKIE_SOURCE.
	Warnings []string
}

// LoadEnv reads the cookie variables through lookup (os.LookupEnv in
// production).
func LoadEnv(lookup func(string) (string, bool)) EnvConfig {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	var cfg EnvConfig
	for _, key := range authTokenKeys {
		if v := get(key); v != "" {
			cfg.AuthToken, cfg.AuthTokenKey = v, key
			break
		}
	}
	for _, key := range ct0Keys {
		if v := get(key); v != "" {
			cfg.CT0, cfg.CT0Key = v, key
			break
		}
	}
	if v := get("TWITTER_COOKIE_SOURCE"); v != "" {
		cfg.Sources, cfg.Warnings = ParseSourceList(v)
	}
	cfg.ChromeProfile = get("TWITTER_CHROME_PROFILE")
	cfg.FirefoxProfile = get("TWITTER_FIREFOX_PROFILE")
	return cfg
}

var sourceSeparators = regexp.MustCompile(`[,\s]+`)

// ParseSourceList parses a comma or whitespace separated browser list.
// Unknown names produce a warning and duplicates are dropped.
func ParseSourceList(value string) ([]Browser, []string) {
	var (
		out      []Browser
		warnings []string
	)
	for _, tok := range sourceSeparators.Split(value, -1) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		switch b := Browser(tok); b {
		case Chrome, Safari, Firefox:
			if !containsBrowser(out, b) {
				out = append(out, b)
			}
		default:
			warnings = append(warnings, fmt.Sprintf("Unknown cookie source %q in TWITTER_COOKIE_SOURCE", tok))
		}
	}
	return out, warnings
}

func containsBrowser(list []Browser, b Browser) bool {
	for _, v := range list {
		if v == b {
			return true
		}
	}
	return false
}

// Cookie is one cookie read from a browser store.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Query asks a store for cookies from a single browser.
type Query struct {
	URL            string
	Origins        []string
	Names          []string
	Browser        Browser
	ChromeProfile  string
	FirefoxProfile string
}

// Lookup is what a store found, plus anything worth telling the user.
type Lookup struct {
	Cookies  []Cookie
	Warnings []string
}

// Store reads cookies from installed browsers.
type Store interface {
	GetCookies(ctx context.Context, q Query) (Lookup, error)
}

// Options controls Resolve. Explicit fields win over Env.
type Options struct {
	Env            EnvConfig
	AuthToken      string
	CT0            string
	Sources        []Browser
	ChromeProfile  string
	FirefoxProfile string
	Store          Store
}

// Cookies is the resolved pair. CookieHeader is empty unless both tokens
// were found.
type Cookies struct {
	AuthToken    string
	CT0          string
	CookieHeader string
	Source       string
}

type Result struct {
	Cookies  Cookies
	Warnings []string
}

// Resolve finds auth_token and ct0 from explicit arguments, then the
// environment, then browser stores in order. It never fails: problems are
// returned as warnings.
func Resolve(ctx context.Context, opts Options) Result {
	warnings := append([]string(nil), opts.Env.Warnings...)
	var c Cookies

	if v := strings.TrimSpace(opts.AuthToken); v != "" {
		c.AuthToken = v
		c.Source = "CLI argument"
	}
	if v := strings.TrimSpace(opts.CT0); v != "" {
		c.CT0 = v
		if c.Source == "" {
			c.Source = "CLI argument"
		}
	}
	if c.AuthToken == "" && opts.Env.AuthToken != "" {
		c.AuthToken = opts.Env.AuthToken
		c.Source = "env " + opts.Env.AuthTokenKey
	}
	if c.CT0 == "" && opts.Env.CT0 != "" {
		c.CT0 = opts.Env.CT0
		if c.Source == "" {
			c.Source = "env " + opts.Env.CT0Key
		}
	}

	if c.AuthToken != "" && c.CT0 != "" {
		c.CookieHeader = header(c.AuthToken, c.CT0)
		return Result{Cookies: c, Warnings: warnings}
	}

	sources := opts.Sources
	if len(sources) == 0 {
		sources = opts.Env.Sources
	}
	if len(sources) == 0 {
		sources = DefaultSources
	}
	chromeProfile := firstNonEmpty(opts.ChromeProfile, opts.Env.ChromeProfile)
	firefoxProfile := firstNonEmpty(opts.FirefoxProfile, opts.Env.FirefoxProfile)

	store := opts.Store
	if store == nil {
		store = NewLocalStore()
	}

	for _, browser := range sources {
		if ctx.Err() != nil {
			break
		}
		found, err := store.GetCookies(ctx, Query{
			URL:            origins[0],
			Origins:        append([]string(nil), origins...),
			Names:          append([]string(nil), cookieNames...),
			Browser:        browser,
			ChromeProfile:  chromeProfile,
			FirefoxProfile: firefoxProfile,
		})
		warnings = append(warnings, found.Warnings...)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", sourceLabel(browser, ""), err))
			continue
		}

		auth := cookieValue(found.Cookies, "auth_token")
		csrf := cookieValue(found.Cookies, "ct0")
		if auth != "" && csrf != "" {
			profile := ""
			switch browser {
			case Chrome:
				profile = chromeProfile
			case Firefox:
				profile = firefoxProfile
			}
			return Result{
				Cookies: Cookies{
					AuthToken:    auth,
					CT0:          csrf,
					CookieHeader: header(auth, csrf),
					Source:       sourceLabel(browser, profile),
				},
				Warnings: warnings,
			}
		}
	}

	if c.AuthToken == "" {
		warnings = append(warnings, missingAuthToken)
	}
	if c.CT0 == "" {
		warnings = append(warnings, missingCT0)
	}
	return Result{Cookies: c, Warnings: warnings}
}

func header(auth, ct0 string) string {
	return "auth_token=" + auth + "; ct0=" + ct0
}

func cookieValue(cookies []Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func sourceLabel(b Browser, profile string) string {
	switch b {
	case Chrome:
		if profile != "" {
			return "Chrome (" + profile + ")"
		}
		return "Chrome"
	case Firefox:
		if profile != "" {
			return "Firefox (" + profile + ")"
		}
		return "Firefox"
	case Safari:
		return "Safari"
	default:
		return string(b)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
