// Package session issues short-lived, capability-scoped session credentials.
// A credential binds a subject, an ordered set of resource-ability requests,
// an expiration and a capacity grant reference to a proof signature over a
// canonical challenge statement.
package session

import (
	"context"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/capacity"
	"github.com/kashguard/go-key-authority/internal/metrics"
	"github.com/kashguard/go-key-authority/internal/types"
)

// State tracks a session request through issuance. Terminal states are
// Issued and Failed; no partial credential ever escapes a failed request.
type State string

const (
	StateRequested        State = "requested"
	StateCapacityResolved State = "capacity_resolved"
	StateChallengeIssued  State = "challenge_issued"
	StateChallengeSigned  State = "challenge_signed"
	StateIssued           State = "issued"
	StateFailed           State = "failed"
)

// Config carries the authority-level identity and policy knobs.
type Config struct {
	Domain           string
	URI              string
	ChainID          int
	DefaultStatement string
	MaxTTL           time.Duration

	// Minter identity and default budget used when a request carries no
	// capacity grant.
	Minter                common.Address
	RequestsPerKilosecond int
	ValidDays             int
}

// Request is a session issuance request.
type Request struct {
	Signer     Signer
	Resources  []types.ResourceAbility
	Expiration time.Time
	Statement  string
	Grant      *types.CapacityGrant
}

type Authority struct {
	cfg    Config
	ledger *capacity.Ledger
	clock  time2.Clock
	m      *metrics.Set
}

func NewAuthority(cfg Config, ledger *capacity.Ledger, clock time2.Clock, m *metrics.Set) *Authority {
	if clock == nil {
		clock = time2.DefaultClock
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 5 * time.Minute
	}
	return &Authority{cfg: cfg, ledger: ledger, clock: clock, m: m}
}

// IssueSession walks the request through the issuance state machine. Any
// step failure surfaces the originating error kind and yields no credential.
func (a *Authority) IssueSession(ctx context.Context, req Request) (*types.SessionCredential, error) {
	cred, err := a.issue(ctx, req)
	if err != nil {
		if a.m != nil {
			a.m.SessionsFailed.Inc()
		}
		return nil, err
	}
	if a.m != nil {
		a.m.SessionsIssued.Inc()
	}
	return cred, nil
}

func (a *Authority) issue(ctx context.Context, req Request) (*types.SessionCredential, error) {
	state := StateRequested
	if req.Signer == nil {
		return nil, a.fail(state, errors.New("session request requires a signer"))
	}
	if len(req.Resources) == 0 {
		return nil, a.fail(state, errors.New("session request requires at least one resource-ability request"))
	}
	subject := req.Signer.Address()

	grant := req.Grant
	if grant == nil {
		var err error
		grant, err = a.ledger.EnsureGrant(ctx, a.cfg.Minter, []common.Address{subject}, a.cfg.RequestsPerKilosecond, a.cfg.ValidDays)
		if err != nil {
			return nil, a.fail(state, err)
		}
	}
	state = StateCapacityResolved

	nonce, err := newNonce()
	if err != nil {
		return nil, a.fail(state, err)
	}
	issuedAt := a.clock.Now()
	expiresAt := issuedAt.Add(a.cfg.MaxTTL)
	if !req.Expiration.IsZero() && req.Expiration.Before(expiresAt) {
		expiresAt = req.Expiration
	}
	statement := req.Statement
	if statement == "" {
		statement = a.cfg.DefaultStatement
	}

	challenge := &Challenge{
		Domain:    a.cfg.Domain,
		Address:   subject.Hex(),
		Statement: statement,
		URI:       a.cfg.URI,
		Version:   "1",
		ChainID:   a.cfg.ChainID,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Resources: req.Resources,
	}
	message := challenge.Message()
	state = StateChallengeIssued

	proof, err := req.Signer.SignMessage(ctx, []byte(message))
	if err != nil {
		return nil, a.fail(state, errors.Wrap(err, "subject failed to sign challenge"))
	}
	recovered, err := RecoverAddress([]byte(message), proof)
	if err != nil {
		return nil, a.fail(state, types.WrapKind(types.ErrSignatureMismatch, err, "verify challenge signature"))
	}
	if recovered != subject {
		return nil, a.fail(state, types.NewKind(types.ErrSignatureMismatch, "verify challenge signature"))
	}
	state = StateChallengeSigned

	cred := &types.SessionCredential{
		Subject:         subject,
		Resources:       append([]types.ResourceAbility(nil), req.Resources...),
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		CapacityGrantID: grant.ID,
		Statement:       statement,
		Nonce:           nonce,
		Proof:           proof,
	}
	log.Debug().
		Str("subject", subject.Hex()).
		Time("expires_at", expiresAt).
		Int("resources", len(cred.Resources)).
		Str("state", string(StateIssued)).
		Msg("Issued session credential")
	return cred, nil
}

// VerifyProof re-renders the challenge the credential claims to carry a
// signature over and recovers the signer. The render is deterministic, so a
// credential whose proof was not produced by its subject over exactly these
// fields fails with ErrSignatureMismatch.
func (a *Authority) VerifyProof(cred *types.SessionCredential) error {
	challenge := &Challenge{
		Domain:    a.cfg.Domain,
		Address:   cred.Subject.Hex(),
		Statement: cred.Statement,
		URI:       a.cfg.URI,
		Version:   "1",
		ChainID:   a.cfg.ChainID,
		Nonce:     cred.Nonce,
		IssuedAt:  cred.IssuedAt,
		ExpiresAt: cred.ExpiresAt,
		Resources: cred.Resources,
	}
	recovered, err := RecoverAddress([]byte(challenge.Message()), cred.Proof)
	if err != nil {
		return types.WrapKind(types.ErrSignatureMismatch, err, "verify credential proof")
	}
	if recovered != cred.Subject {
		return types.NewKind(types.ErrSignatureMismatch, "verify credential proof")
	}
	return nil
}

func (a *Authority) fail(state State, err error) error {
	log.Debug().Err(err).Str("state", string(state)).Msg("Session request failed")
	return err
}
