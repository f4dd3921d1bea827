package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
)

const provider = "gmail"

// AuthOptions tune the consent flow.
type AuthOptions struct {
	// Port for the loopback redirect; 0 picks a free one.
	Port int
	// Interactive allows the browser consent flow when no valid token is cached.
	Interactive bool
	// Open, if set, is used to show the consent URL in a browser.
	Open func(string) error
}

// NewService initializes an OAuth-backed Gmail service using:
// - Client credentials at <configDir>/client_secret.json
// - Token cache at <configDir>/token.json
// Scope: gmail.modify (read, mark read, label).
func NewService(ctx context.Context, configDir string, opts AuthOptions) (*gmailv1.Service, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("oauth port out of range: %d", opts.Port)
	}
	credPath := filepath.Join(configDir, "client_secret.json")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}

	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tokFile := filepath.Join(configDir, "token.json")
	tok, err := readToken(tokFile)
	if err == nil {
		// Validate the cached token by making a lightweight API call.
		client := cfg.Client(ctx, tok)
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
		if err == nil {
			_, err = svc.Users.GetProfile("me").Context(ctx).Do()
		}
		if err == nil {
			return svc, nil
		}
		if !isAuthFailure(err) {
			return nil, wrapErr("validate token", err)
		}
		// Token is invalid/expired: remove it and fall through to re-auth.
		os.Remove(tokFile)
	}

	if !opts.Interactive {
		return nil, &mailbox.AuthError{Provider: provider, Message: "no valid token, run login"}
	}

	tok, err = getTokenFromWeb(ctx, cfg, opts)
	if err != nil {
		return nil, &mailbox.AuthError{Provider: provider, Message: "consent flow failed", Err: err}
	}
	if err := saveToken(tokFile, tok); err != nil {
		return nil, err
	}

	client := cfg.Client(ctx, tok)
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// isAuthFailure reports whether err means the credentials are no longer usable.
func isAuthFailure(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return true
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusUnauthorized
	}
	return false
}

// wrapErr annotates err and promotes credential failures to mailbox.AuthError.
func wrapErr(op string, err error) error {
	if isAuthFailure(err) {
		return &mailbox.AuthError{Provider: provider, Message: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, path)
}

// getTokenFromWeb runs a loopback HTTP server to capture the auth code.
// If that fails or times out, it falls back to manual paste (code or URL).
func getTokenFromWeb(ctx context.Context, cfg *oauth2.Config, opts AuthOptions) (*oauth2.Token, error) {
	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", opts.Port))
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		redirect := fmt.Sprintf("http://127.0.0.1:%d/", port)
		oldRedirect := cfg.RedirectURL
		cfg.RedirectURL = redirect

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case resCh <- result{code: code}:
			default:
			}
			go func() { _ = srv.Shutdown(context.Background()) }()
		})
		go func() { _ = srv.Serve(ln) }()

		authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintln(os.Stderr, "A browser window will open. If it does not, copy this URL:")
		fmt.Fprintln(os.Stderr, authURL)
		fmt.Fprintf(os.Stderr, "Waiting for redirect on %s\n", redirect)
		if opts.Open != nil {
			_ = opts.Open(authURL)
		}

		select {
		case <-ctx.Done():
			cfg.RedirectURL = oldRedirect
			_ = srv.Shutdown(context.Background())
			return nil, ctx.Err()
		case r := <-resCh:
			if r.err != nil {
				return nil, r.err
			}
			tok, err := cfg.Exchange(ctx, strings.TrimSpace(r.code))
			if err != nil {
				return nil, fmt.Errorf("token exchange: %w", err)
			}
			// Restore redirect only after exchange to avoid invalid_grant.
			cfg.RedirectURL = oldRedirect
			return tok, nil
		case <-time.After(120 * time.Second):
			cfg.RedirectURL = oldRedirect
			_ = srv.Shutdown(context.Background())
			fmt.Fprintln(os.Stderr, "Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	// Manual paste fallback.
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(os.Stderr, "Open this URL in your browser to authorize access:")
	fmt.Fprintln(os.Stderr, authURL)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(os.Stderr, "> ")

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := authCode(sc.Text())
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// authCode accepts either the bare code or the full redirect URL.
func authCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	c := u.Query().Get("code")
	if c == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return strings.TrimSpace(c), nil
}
