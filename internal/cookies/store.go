package cookies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// LocalStore reads cookies from browsers installed on this machine.
// Only Firefox is readable; Chrome and Safari stores are encrypted or
// binary and report a warning instead.
type LocalStore struct {
	Firefox *FirefoxStore
}

func NewLocalStore() *LocalStore {
	return &LocalStore{Firefox: &FirefoxStore{}}
}

func (s *LocalStore) GetCookies(ctx context.Context, q Query) (Lookup, error) {
	switch q.Browser {
	case Firefox:
		return s.Firefox.GetCookies(ctx, q)
	case Chrome, Safari:
		return Lookup{Warnings: []string{
			fmt.Sprintf("%s cookie store is not supported; set AUTH_TOKEN and CT0 instead", sourceLabel(q.Browser, "")),
		}}, nil
	default:
		return Lookup{}, fmt.Errorf("unknown browser %q", q.Browser)
	}
}

// FirefoxStore reads cookies.sqlite from a Firefox profile.
type FirefoxStore struct {
	// ProfilesDir overrides the platform default profile root.
	ProfilesDir string
}

func (s *FirefoxStore) GetCookies(ctx context.Context, q Query) (Lookup, error) {
	root := s.ProfilesDir
	if root == "" {
		var err error
		root, err = defaultFirefoxProfilesDir()
		if err != nil {
			return Lookup{}, err
		}
	}

	profileDir, err := findFirefoxProfile(root, q.FirefoxProfile)
	if err != nil {
		return Lookup{Warnings: []string{fmt.Sprintf("Firefox: %v", err)}}, nil
	}

	cookies, err := readMozCookies(ctx, filepath.Join(profileDir, "cookies.sqlite"), q.Names, hostsFor(q.Origins))
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{Cookies: cookies}, nil
}

func defaultFirefoxProfilesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles"), nil
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Mozilla", "Firefox", "Profiles"), nil
	default:
		return filepath.Join(home, ".mozilla", "firefox"), nil
	}
}

// findFirefoxProfile picks a profile directory. A named profile matches the
// directory name or its suffix after the random prefix ("abcd1234.name").
// Without a name, default-release wins over default, then any profile with
// a cookie database.
func findFirefoxProfile(root, profile string) (string, error) {
	if profile != "" && filepath.IsAbs(profile) {
		if hasCookieDB(profile) {
			return profile, nil
		}
		return "", fmt.Errorf("no cookies.sqlite in %s", profile)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no profiles found in %s", root)
		}
		return "", err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && hasCookieDB(filepath.Join(root, e.Name())) {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	if profile != "" {
		for _, d := range dirs {
			if d == profile || strings.HasSuffix(d, "."+profile) {
				return filepath.Join(root, d), nil
			}
		}
		return "", fmt.Errorf("profile %q not found in %s", profile, root)
	}
	for _, suffix := range []string{".default-release", ".default"} {
		for _, d := range dirs {
			if strings.HasSuffix(d, suffix) {
				return filepath.Join(root, d), nil
			}
		}
	}
	if len(dirs) > 0 {
		return filepath.Join(root, dirs[0]), nil
	}
	return "", fmt.Errorf("no profiles found in %s", root)
}

func hasCookieDB(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "cookies.sqlite"))
	return err == nil && !info.IsDir()
}

// hostsFor turns origins into the host values Firefox stores, with and
// without the leading dot.
func hostsFor(origins []string) map[string]bool {
	hosts := map[string]bool{}
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Hostname() == "" {
			continue
		}
		h := strings.ToLower(u.Hostname())
		hosts[h] = true
		hosts["."+h] = true
	}
	return hosts
}

func readMozCookies(ctx context.Context, dbPath string, names []string, hosts map[string]bool) ([]Cookie, error) {
	// immutable lets us read while Firefox holds the database lock.
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&immutable=1", dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer db.Close()

	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := db.QueryContext(ctx,
		`SELECT name, value, host FROM moz_cookies WHERE name IN (`+placeholders+`) ORDER BY lastAccessed DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", dbPath, err)
	}
	defer rows.Close()

	var out []Cookie
	seen := map[string]bool{}
	for rows.Next() {
		var c Cookie
		if err := rows.Scan(&c.Name, &c.Value, &c.Domain); err != nil {
			return nil, fmt.Errorf("reading %s: %w", dbPath, err)
		}
		if len(hosts) > 0 && !hosts[strings.ToLower(c.Domain)] {
			continue
		}
		if seen[c.Name] || c.Value == "" {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, rows.Err()
}
