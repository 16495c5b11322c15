package acme

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	acmeErrors "github.com/yourusername/acmehook/errors"
	"github.com/yourusername/acmehook/internal/hook"
	"github.com/yourusername/acmehook/internal/jose"

	"go.uber.org/multierr"
	"golang.org/x/net/idna"
)

// Run is the top-level entry point: it registers an account, drives an
// order per CSR through authorization and the hook-mediated challenge
// lifecycle, finalizes every surviving order, and returns one Result
// per CSR that made it all the way to a valid certificate.
//
// Account registration runs once per session, before any order is
// created. For an account that already existed, a configured contact
// list is pushed with a single update request, not once per CSR.
func Run(ctx context.Context, in Input) ([]Result, error) {
	if in.Logger == nil {
		return nil, wrapProtocol(fmt.Errorf("acme: Input.Logger must not be nil"))
	}
	if len(in.CSRs) == 0 {
		return nil, wrapProtocol(fmt.Errorf("acme: Input.CSRs must not be empty"))
	}

	for _, csr := range in.CSRs {
		for _, name := range csr.DNSNames {
			if _, err := idna.Lookup.ToASCII(name); err != nil {
				return nil, wrapProtocol(fmt.Errorf("csr %s: invalid dns name %q: %w", csr.ID, name, err))
			}
		}
	}

	transport := jose.NewTransport(15*time.Second, in.Logger)
	client := &jose.Client{
		Transport: transport,
		Signer:    in.AccountKey,
		Logger:    in.Logger,
	}

	if err := client.FetchDirectory(ctx, in.DirectoryURL); err != nil {
		return nil, err
	}

	if err := registerAccount(ctx, client, in.Contact); err != nil {
		return nil, err
	}

	runner := in.HookRunner
	if runner == nil {
		runner = hook.New(in.HookPath, in.HookArgs, in.Logger)
	}

	states := make([]*orderState, 0, len(in.CSRs))
	var allTasks []challengeTask

	for _, csr := range in.CSRs {
		st := &orderState{csr: csr, status: orderPending}
		states = append(states, st)

		ord, orderURL, err := createOrder(ctx, client, csr.DNSNames)
		if err != nil {
			return nil, err
		}
		st.order = ord
		st.orderURL = orderURL

		tasks, err := enumerateAuthorizations(ctx, client, ord, in.ChallengeType, runner, csr.ID)
		if err != nil {
			return nil, err
		}
		allTasks = append(allTasks, tasks...)
	}

	if _, err := runner.Run(ctx, hook.Activate, nil, nil); err != nil {
		return nil, acmeErrors.Wrap(&HookFailureError{Verb: "activate", Err: err})
	}

	var sessionErr error
	var checkFailed []challengeTask

	if !in.DisableCheck {
		var surviving []challengeTask
		for _, t := range allTasks {
			if _, err := runner.Run(ctx, hook.Check, []string{t.domain, t.token, t.content}, nil); err != nil {
				markOrderStatus(states, t.owningOrderID, orderCheckFailed)
				sessionErr = multierr.Append(sessionErr, acmeErrors.Wrap(&CheckHookFailureError{Domain: t.domain, Err: err}))
				in.Logger.Error("check hook failed", "csr", t.owningOrderID, "domain", t.domain, "err", err)
				checkFailed = append(checkFailed, t)
				continue
			}
			surviving = append(surviving, t)
		}
		allTasks = surviving
	}

	// Every surviving task is submitted and polled independently: one
	// domain's authorization failure only drops its owning order, it
	// does not stop sibling domains of other orders (or even of the
	// same order) from being submitted and cleaned up.
	for _, t := range allTasks {
		if err := submitAndPollChallenge(ctx, client, t); err != nil {
			markOrderStatus(states, t.owningOrderID, orderAuthFailed)
			sessionErr = multierr.Append(sessionErr, err)
			in.Logger.Error("authorization failed", "csr", t.owningOrderID, "domain", t.domain, "err", err)
		}

		if _, err := runner.Run(ctx, hook.Remove, []string{t.domain, t.token, t.content}, nil); err != nil {
			return nil, acmeErrors.Wrap(&HookFailureError{Verb: "remove", Err: err})
		}
	}

	// A task whose check failed is never submitted, but its setup hook
	// already published content, so it is torn down too.
	for _, t := range checkFailed {
		if _, err := runner.Run(ctx, hook.Remove, []string{t.domain, t.token, t.content}, nil); err != nil {
			return nil, acmeErrors.Wrap(&HookFailureError{Verb: "remove", Err: err})
		}
	}

	if _, err := runner.Run(ctx, hook.Finish, nil, nil); err != nil {
		return nil, acmeErrors.Wrap(&HookFailureError{Verb: "finish", Err: err})
	}

	var results []Result
	for _, st := range states {
		if st.status != orderPending {
			continue
		}

		chain, err := finalizeAndDownload(ctx, client, st)
		if err != nil {
			st.status = orderFinalizeFailed
			sessionErr = multierr.Append(sessionErr, err)
			in.Logger.Error("finalize failed", "csr", st.csr.ID, "err", err)
			continue
		}
		st.status = orderFinalized
		st.cert = chain

		if _, err := runner.Run(ctx, hook.Write, []string{st.csr.ID}, chain); err != nil {
			return nil, acmeErrors.Wrap(&HookFailureError{Verb: "write", Err: err})
		}

		results = append(results, Result{ID: st.csr.ID, CertificateChainPEM: chain})
	}

	return results, sessionErr
}

func markOrderStatus(states []*orderState, csrID string, status orderStatus) {
	for _, st := range states {
		if st.csr.ID == csrID && st.status == orderPending {
			st.status = status
		}
	}
}

// registerAccount performs newAccount and, for an account that already
// existed, updates its contact list. It sets client.KeyID to the
// returned Location header, which flips every subsequent signed
// request from embedding jwk to embedding kid.
// https://datatracker.ietf.org/doc/html/rfc8555#section-7.3
func registerAccount(ctx context.Context, client *jose.Client, contact []string) error {
	req := jose.Account{
		Contact:              contact,
		TermsOfServiceAgreed: true,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return wrapProtocol(err)
	}

	res, err := client.Signed(ctx, client.Directory.NewAccountURL, payload, "newAccount")
	if err != nil {
		return err
	}

	loc := res.Header.Get("Location")
	if loc == "" {
		return wrapProtocol(fmt.Errorf("newAccount response carried no Location header"))
	}
	client.KeyID = loc

	if res.Status == http.StatusOK && len(contact) > 0 {
		// The account already existed; push the caller's contact list.
		updatePayload, err := json.Marshal(jose.Account{Contact: contact})
		if err != nil {
			return wrapProtocol(err)
		}
		if _, err := client.Signed(ctx, loc, updatePayload, "updateAccount"); err != nil {
			return err
		}
	}

	return nil
}
