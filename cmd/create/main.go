// Command create mints signed tokens for local development. Generate a key
// pair with "create keys", serve the public set as the issuer's key set, then
// sign tokens with "create token".
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/spf13/cobra"
)

const (
	defaultPrivatePath = ".development/keys/jwks.private.json"
	defaultPublicPath  = ".development/keys/jwks.json"
)

type tokenOptions struct {
	jwksPath    string
	keyID       string
	domain      string
	audience    string
	subject     string
	permissions []string
	validity    time.Duration
}

type keyOptions struct {
	privatePath string
	publicPath  string
	keyID       string
	algorithm   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "create",
		Short:        "Development tokens for the casting agency API",
		SilenceUsage: true,
	}

	root.AddCommand(newTokenCommand(), newKeysCommand())

	return root
}

func newTokenCommand() *cobra.Command {
	opts := tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a token carrying the given permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := createToken(opts, time.Now().UTC())
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), token)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.jwksPath, "jwks", defaultPrivatePath, "private key set used to sign")
	flags.StringVar(&opts.keyID, "kid", "test-key", "ID of the signing key in the key set")
	flags.StringVar(&opts.domain, "domain", "local.testing", "issuer domain; the iss claim is https://<domain>/")
	flags.StringVar(&opts.audience, "audience", "casting-agency", "aud claim")
	flags.StringVar(&opts.subject, "subject", "auth0|developer", "sub claim")
	flags.StringSliceVar(&opts.permissions, "permission", nil, "permission to grant, may be repeated")
	flags.DurationVar(&opts.validity, "validity", time.Hour, "time until the token expires")

	return cmd
}

func newKeysCommand() *cobra.Command {
	opts := keyOptions{}

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a signing key and write the private and public key sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createKeys(opts, rand.Reader)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.privatePath, "private", defaultPrivatePath, "output path of the private key set")
	flags.StringVar(&opts.publicPath, "public", defaultPublicPath, "output path of the public key set")
	flags.StringVar(&opts.keyID, "kid", "test-key", "ID of the generated key")
	flags.StringVar(&opts.algorithm, "alg", string(jose.RS256), "signing algorithm declared for the key")

	return cmd
}

func createToken(opts tokenOptions, now time.Time) (string, error) {
	data, err := os.ReadFile(opts.jwksPath)
	if err != nil {
		return "", fmt.Errorf("error reading jwks: %w", err)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(data, &keySet); err != nil {
		return "", fmt.Errorf("error loading jwks: %w", err)
	}

	keys := keySet.Key(opts.keyID)
	if len(keys) == 0 {
		return "", fmt.Errorf("key %q not found in %s", opts.keyID, opts.jwksPath)
	}
	key := keys[0]

	registered := jwt.Claims{
		Issuer:    "https://" + opts.domain + "/",
		Subject:   opts.subject,
		Audience:  jwt.Audience{opts.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		Expiry:    jwt.NewNumericDate(now.Add(opts.validity)),
	}

	permissions := opts.permissions
	if permissions == nil {
		permissions = []string{}
	}

	return sign(&key, registered, map[string]any{"permissions": permissions})
}

func sign(jwk *jose.JSONWebKey, claims ...any) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(jwk.Algorithm), Key: jwk},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	builder := jwt.Signed(signer)
	for _, claim := range claims {
		builder = builder.Claims(claim)
	}

	return builder.Serialize()
}

func createKeys(opts keyOptions, random io.Reader) error {
	privateKey, err := rsa.GenerateKey(random, 2048)
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}

	jwk := jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     opts.keyID,
		Algorithm: opts.algorithm,
		Use:       "sig",
	}

	if err := writeKeySet(opts.privatePath, jwk); err != nil {
		return err
	}

	return writeKeySet(opts.publicPath, jwk.Public())
}

func writeKeySet(path string, keys ...jose.JSONWebKey) error {
	data, err := json.MarshalIndent(jose.JSONWebKeySet{Keys: keys}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
