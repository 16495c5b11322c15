// Command acmehook is a thin CLI wrapper around the acme package. It
// parses flags, loads an RSA account key and CSR files from disk, and
// assembles an acme.Input. It contains no protocol logic of its own.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yourusername/acmehook/acme"
	"github.com/yourusername/acmehook/internal/jose"
	acmelog "github.com/yourusername/acmehook/log"
)

func main() {
	var (
		directoryURL  = flag.String("directory-url", "", "ACME directory URL")
		accountKeyPth = flag.String("account-key", "", "path to a PEM-encoded RSA private key")
		csrPaths      = flag.String("csrs", "", "comma-separated paths to DER-encoded CSR files")
		contact       = flag.String("contact", "", "comma-separated contact URIs, e.g. mailto:admin@example.org")
		hookPath      = flag.String("hook", "", "path to the challenge hook executable")
		challengeType = flag.String("challenge-type", "http-01", "http-01 or dns-01")
		disableCheck  = flag.Bool("disable-check", false, "skip the check hook verb")
	)
	flag.Parse()

	if *directoryURL == "" || *accountKeyPth == "" || *csrPaths == "" || *hookPath == "" {
		fmt.Fprintln(os.Stderr, "acmehook: -directory-url, -account-key, -csrs and -hook are required")
		os.Exit(2)
	}

	logger := acmelog.New(context.Background(), os.Stderr, 1000)

	signer, err := loadSigner(*accountKeyPth)
	if err != nil {
		logger.Error("loading account key", "err", err)
		os.Exit(1)
	}

	csrs, err := loadCSRs(strings.Split(*csrPaths, ","))
	if err != nil {
		logger.Error("loading csrs", "err", err)
		os.Exit(1)
	}

	var contacts []string
	if *contact != "" {
		contacts = strings.Split(*contact, ",")
	}

	in := acme.Input{
		AccountKey:    signer,
		CSRs:          csrs,
		DirectoryURL:  *directoryURL,
		Contact:       contacts,
		HookPath:      *hookPath,
		ChallengeType: *challengeType,
		DisableCheck:  *disableCheck,
		Logger:        logger,
	}

	results, err := acme.Run(context.Background(), in)
	if err != nil {
		logger.Error("session completed with errors", "err", err)
	}

	for _, r := range results {
		fmt.Printf("issued certificate for %s (%d bytes)\n", r.ID, len(r.CertificateChainPEM))
	}

	if len(results) != len(csrs) {
		os.Exit(1)
	}
}

func loadSigner(path string) (jose.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("acmehook: %s is not PEM-encoded", path)
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("acmehook: parsing %s: %w", path, err)
		}
		rsaKey, ok := pkcs8.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("acmehook: %s is not an RSA key", path)
		}
		key = rsaKey
	}

	return jose.RSASigner{Key: key}, nil
}

func loadCSRs(paths []string) ([]acme.CSR, error) {
	out := make([]acme.CSR, 0, len(paths))
	for _, p := range paths {
		der, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		csr, err := x509.ParseCertificateRequest(der)
		if err != nil {
			return nil, fmt.Errorf("acmehook: parsing csr %s: %w", p, err)
		}
		out = append(out, acme.CSR{
			ID:       p,
			DER:      der,
			DNSNames: csr.DNSNames,
		})
	}
	return out, nil
}
