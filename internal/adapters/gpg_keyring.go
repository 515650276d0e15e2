package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/ports"
	"aptly-reconcile/internal/shared"
)

const DefaultKeyserver = "hkps://keys.openpgp.org"

// GPGKeyring manages the keyring aptly verifies mirrors against.
type GPGKeyring struct {
	Runner       ports.CommandRunnerPort
	GPGBin       string
	Keyring      string
	HTTPClient   *http.Client
	MaxRetries   uint64
	RetryInitial time.Duration
}

func NewGPGKeyring(runner ports.CommandRunnerPort, gpgBin string, keyring string) GPGKeyring {
	if gpgBin == "" {
		gpgBin = "gpg"
	}
	if keyring == "" {
		keyring = "trustedkeys.gpg"
	}
	return GPGKeyring{
		Runner:       runner,
		GPGBin:       gpgBin,
		Keyring:      keyring,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		MaxRetries:   2,
		RetryInitial: time.Second,
	}
}

func (k GPGKeyring) base() []string {
	return []string{k.GPGBin, "--no-default-keyring", "--keyring", k.Keyring}
}

func (k GPGKeyring) ListKeys(ctx context.Context) (string, error) {
	output, err := k.Runner.Run(ctx, append(k.base(), "--list-keys", "--with-colons"))
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// ImportKey receives key from the keyserver, retrying with backoff. When
// that fails and url is set, the key is downloaded and imported instead;
// the keyserver error is returned only if both fail.
func (k GPGKeyring) ImportKey(ctx context.Context, key string, keyserver string, url string) error {
	if keyserver == "" {
		keyserver = DefaultKeyserver
	}
	logger := log.Ctx(ctx)
	recv := func() error {
		_, err := k.Runner.Run(ctx, append(k.base(), "--keyserver", keyserver, "--recv-keys", key))
		return err
	}
	policy := backoff.NewExponentialBackOff()
	if k.RetryInitial > 0 {
		policy.InitialInterval = k.RetryInitial
	}
	serverErr := backoff.Retry(recv, backoff.WithContext(backoff.WithMaxRetries(policy, k.MaxRetries), ctx))
	if serverErr == nil {
		logger.Info().Str("key", key).Str("keyserver", keyserver).Msg("imported gpg key")
		return nil
	}
	if strings.TrimSpace(url) == "" {
		return keyImportError(key, serverErr)
	}
	logger.Warn().Err(serverErr).Str("key", key).Str("url", url).Msg("keyserver failed, importing from url")
	if err := k.importFromURL(ctx, url); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("url import failed")
		return keyImportError(key, serverErr)
	}
	return nil
}

func (k GPGKeyring) importFromURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := k.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return shared.HTTPStatusError(resp.StatusCode, url)
	}

	file, err := os.CreateTemp("", "aptly-reconcile-key-*.asc")
	if err != nil {
		return err
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(body); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	_, err = k.Runner.Run(ctx, append(k.base(), "--import", file.Name()))
	return err
}

func keyImportError(key string, cause error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("failed to import gpg key %s", key)).
		WithCause(cause)
}

var _ ports.KeyringPort = GPGKeyring{}
