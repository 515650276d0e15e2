package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	calls    [][]string
	imported []string
	fail     func(argv []string) error
	output   string
}

func (r *scriptedRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	r.calls = append(r.calls, argv)
	if argv[len(argv)-2] == "--import" {
		data, err := os.ReadFile(argv[len(argv)-1])
		if err != nil {
			return nil, err
		}
		r.imported = append(r.imported, string(data))
	}
	if r.fail != nil {
		if err := r.fail(argv); err != nil {
			return nil, err
		}
	}
	return []byte(r.output), nil
}

func testKeyring(runner *scriptedRunner) GPGKeyring {
	keyring := NewGPGKeyring(runner, "", "")
	keyring.RetryInitial = 1
	return keyring
}

func TestListKeys(t *testing.T) {
	runner := &scriptedRunner{output: "pub:-:2048:1:EA3C3C0B46A5E7DE:\n"}
	listing, err := testKeyring(runner).ListKeys(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "pub:-:2048:1:EA3C3C0B46A5E7DE:\n", listing)
	assert.Equal(t, []string{"gpg", "--no-default-keyring", "--keyring", "trustedkeys.gpg", "--list-keys", "--with-colons"}, runner.calls[0])
}

func TestImportKeyFromKeyserver(t *testing.T) {
	runner := &scriptedRunner{}
	require.NoError(t, testKeyring(runner).ImportKey(t.Context(), "650EA84C", "", ""))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"gpg", "--no-default-keyring", "--keyring", "trustedkeys.gpg",
		"--keyserver", DefaultKeyserver, "--recv-keys", "650EA84C",
	}, runner.calls[0])
}

func TestImportKeyRetriesKeyserver(t *testing.T) {
	attempts := 0
	runner := &scriptedRunner{fail: func(argv []string) error {
		attempts++
		if attempts < 2 {
			return errors.New("keyserver timeout")
		}
		return nil
	}}
	require.NoError(t, testKeyring(runner).ImportKey(t.Context(), "650EA84C", "hkp://example", ""))
	assert.Equal(t, 2, attempts)
}

func TestImportKeyFallsBackToURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"))
	}))
	defer server.Close()

	runner := &scriptedRunner{fail: func(argv []string) error {
		if contains(argv, "--recv-keys") {
			return errors.New("no keyserver")
		}
		return nil
	}}
	require.NoError(t, testKeyring(runner).ImportKey(t.Context(), "650EA84C", "", server.URL+"/test01.key"))
	require.Len(t, runner.imported, 1)
	assert.True(t, strings.HasPrefix(runner.imported[0], "-----BEGIN PGP"))
}

func TestImportKeyReportsKeyserverErrorWhenBothFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	runner := &scriptedRunner{fail: func(argv []string) error {
		return errors.New("no keyserver")
	}}
	err := testKeyring(runner).ImportKey(t.Context(), "650EA84C", "", server.URL+"/missing.key")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "650EA84C")
	assert.Empty(t, runner.imported)
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
