package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/rsm23/netflix-home-auto-confirm/internal/config"
	"github.com/rsm23/netflix-home-auto-confirm/internal/confirm"
	"github.com/rsm23/netflix-home-auto-confirm/internal/credential"
	"github.com/rsm23/netflix-home-auto-confirm/internal/gmail"
)

// login runs the Gmail consent flow from scratch, or stores the IMAP
// password in the system keyring.
func login(ctx context.Context, cfg *config.Config) error {
	switch cfg.Provider {
	case config.ProviderGmail:
		if err := os.MkdirAll(cfg.ConfigDir, 0o700); err != nil {
			return err
		}
		tokFile := filepath.Join(cfg.ConfigDir, "token.json")
		if err := os.Remove(tokFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if _, err := gmail.NewService(ctx, cfg.ConfigDir, gmail.AuthOptions{
			Port:        cfg.Gmail.OAuthPort,
			Interactive: true,
			Open:        confirm.OpenBrowser,
		}); err != nil {
			return err
		}
		fmt.Printf("Token saved to %s\n", tokFile)
		return nil

	case config.ProviderIMAP:
		if cfg.IMAP.Username == "" {
			return errors.New("imap username is required (--imap-user)")
		}
		pw, err := readPassword(fmt.Sprintf("IMAP password for %s: ", cfg.IMAP.Username))
		if err != nil {
			return err
		}
		if pw == "" {
			return errors.New("empty password")
		}
		if err := credential.New(cfg.ConfigDir).Set(credential.IMAPPasswordKey(cfg.IMAP.Username), pw); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
		fmt.Println("Password stored in the keyring")
		return nil
	}
	return fmt.Errorf("unknown provider %q", cfg.Provider)
}

// secretDeleter is the part of the credential store logout needs.
type secretDeleter interface {
	Delete(key string) error
}

// logout forgets the stored Gmail token or the keyring IMAP password.
// Nothing to forget is not an error.
func logout(cfg *config.Config, secrets secretDeleter) error {
	switch cfg.Provider {
	case config.ProviderGmail:
		tokFile := filepath.Join(cfg.ConfigDir, "token.json")
		if err := os.Remove(tokFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Println("Gmail token removed")
		return nil

	case config.ProviderIMAP:
		if cfg.IMAP.Username == "" {
			return errors.New("imap username is required (--imap-user)")
		}
		err := secrets.Delete(credential.IMAPPasswordKey(cfg.IMAP.Username))
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("remove password: %w", err)
		}
		fmt.Println("Password removed from the keyring")
		return nil
	}
	return fmt.Errorf("unknown provider %q", cfg.Provider)
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	// Piped input: first line.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
