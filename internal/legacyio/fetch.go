package legacyio

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

// downloadClient fetches export files. Exports can be large, so the
// timeout covers minutes of body transfer, not one round trip.
var downloadClient = &http.Client{Timeout: 10 * time.Minute}

// fetchTemp downloads a remote export to a temp file and returns its
// path.
func fetchTemp(ctx context.Context, u *url.URL) (string, error) {
	switch u.Scheme {
	case "http", "https":
		return fetchHTTP(ctx, u)
	case "ftp":
		return fetchFTP(ctx, u)
	}
	return "", eris.Errorf("legacyio: unsupported scheme %q", u.Scheme)
}

func fetchHTTP(ctx context.Context, u *url.URL) (string, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("legacyio", "download")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", eris.Wrap(err, "legacyio: build download request")
		}

		resp, err := downloadClient.Do(req)
		if err != nil {
			return "", eris.Wrapf(err, "legacyio: download %s", u.String())
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("legacyio: unexpected status %d downloading %s", resp.StatusCode, u.String())
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return "", resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return "", statusErr
		}

		return writeTemp(resp.Body, filepath.Ext(u.Path))
	})
}

func fetchFTP(ctx context.Context, u *url.URL) (string, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return "", eris.New("legacyio: empty path in ftp url")
	}

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	zap.L().Debug("retrieving export over ftp",
		zap.String("host", host),
		zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrap(err, "legacyio: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login(user, pass); err != nil {
		return "", eris.Wrap(err, "legacyio: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return "", eris.Wrap(err, "legacyio: ftp retrieve")
	}
	defer resp.Close()

	return writeTemp(resp, filepath.Ext(u.Path))
}

// writeTemp copies r to a fresh temp file, keeping the source extension
// so format detection works on the downloaded copy.
func writeTemp(r io.Reader, ext string) (string, error) {
	f, err := os.CreateTemp("", "legacy-export-*"+ext)
	if err != nil {
		return "", eris.Wrap(err, "legacyio: create temp file")
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", eris.Wrap(err, "legacyio: write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", eris.Wrap(err, "legacyio: close temp file")
	}
	return f.Name(), nil
}
