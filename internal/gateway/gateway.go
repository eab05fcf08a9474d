// Package gateway forwards program executions to the signing network on
// behalf of a session credential holder. It holds no key material; its job
// is the execution-time authorization re-check and error mapping.
package gateway

import (
	"context"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/delegation"
	"github.com/kashguard/go-key-authority/internal/keystore"
	"github.com/kashguard/go-key-authority/internal/metrics"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/types"
)

// ProofVerifier checks that a credential's proof signature was produced by
// its subject over the credential's own challenge fields.
type ProofVerifier interface {
	VerifyProof(cred *types.SessionCredential) error
}

type Gateway struct {
	client      network.Client
	keys        *keystore.Service
	delegations *delegation.Service
	verifier    ProofVerifier
	clock       time2.Clock
	m           *metrics.Set
}

func NewGateway(client network.Client, keys *keystore.Service, delegations *delegation.Service, verifier ProofVerifier, clock time2.Clock, m *metrics.Set) *Gateway {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Gateway{client: client, keys: keys, delegations: delegations, verifier: verifier, clock: clock, m: m}
}

// Execute validates the credential and forwards the program execution.
// Authorization is re-read from the registries at call time, not at issuance
// time: revoking a delegatee, unpermitting a tool or disabling it takes
// effect here even against a credential that has not yet expired.
func (g *Gateway) Execute(ctx context.Context, cred *types.SessionCredential, ref network.ProgramRef, params map[string]any) (*network.ExecutionResult, error) {
	result, err := g.execute(ctx, cred, ref, params)
	if g.m != nil {
		g.m.Executions.WithLabelValues(outcome(err)).Inc()
	}
	return result, err
}

func (g *Gateway) execute(ctx context.Context, cred *types.SessionCredential, ref network.ProgramRef, params map[string]any) (*network.ExecutionResult, error) {
	if cred == nil {
		return nil, types.NewKind(types.ErrUnauthorized, "execute program")
	}
	if cred.ExpiredAt(g.clock.Now()) {
		return nil, types.NewKind(types.ErrCredentialExpired, "execute program")
	}
	if err := g.verifier.VerifyProof(cred); err != nil {
		return nil, err
	}

	programID := ref.Resolve()
	authorized := 0
	for _, res := range cred.Resources {
		if res.Ability != types.AbilityExecute {
			continue
		}
		if err := g.authorize(ctx, cred, res.Resource, programID); err != nil {
			return nil, err
		}
		authorized++
	}
	if authorized == 0 {
		return nil, types.NewKind(types.ErrUnauthorized, "execute program: credential carries no execute capability")
	}

	result, err := g.client.ExecuteProgram(ctx, cred, ref, params)
	if err != nil {
		var execErr *network.ExecutionError
		if errors.As(err, &execErr) {
			return nil, types.WrapKind(types.ErrExecutionFailed, err, "execute program")
		}
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "execute program")
	}

	log.Debug().
		Str("subject", cred.Subject.Hex()).
		Str("program_id", programID).
		Msg("Forwarded program execution")
	return result, nil
}

// authorize re-checks, against live registry state, that the tool is still
// registered and enabled for the key, and that a non-owner subject is still
// a delegatee with an enabled permission.
func (g *Gateway) authorize(ctx context.Context, cred *types.SessionCredential, keyID, programID string) error {
	rec, err := g.keys.Get(ctx, keyID)
	if err != nil {
		return err
	}

	status, err := g.delegations.IsToolRegistered(ctx, keyID, programID)
	if err != nil {
		return err
	}
	if !status.IsRegistered {
		return types.NewKind(types.ErrToolNotRegistered, "execute program")
	}
	if !status.IsEnabled {
		return types.NewKind(types.ErrUnauthorized, "execute program: tool is disabled")
	}

	if cred.Subject == rec.Owner {
		return nil
	}
	perm, err := g.delegations.IsToolPermitted(ctx, keyID, programID, cred.Subject)
	if err != nil {
		return err
	}
	if !perm.IsEnabled {
		return types.NewKind(types.ErrUnauthorized, "execute program: tool is not permitted for subject")
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, types.ErrCredentialExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, types.ErrUnauthorized), errors.Is(err, types.ErrToolNotRegistered), errors.Is(err, types.ErrSignatureMismatch):
		return metrics.OutcomeDenied
	case errors.Is(err, types.ErrExecutionFailed):
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeUnavailable
	}
}
