package network

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/types"
)

// Handler is a program implementation hosted by the fake network, keyed by
// content address.
type Handler func(ctx context.Context, params map[string]any) (string, error)

// SignProgramCode is the code blob of the built-in signing program. Its
// content address is the program reference for plain "sign this digest"
// executions.
var SignProgramCode = []byte("builtin:ecdsa-sign:v1")

// FakeClient is an in-process Client. It generates real secp256k1 pairs and
// dispatches program executions to registered Go handlers. It backs the
// secret-sharing provider, the CLI's local mode and the test suite; the
// private halves never leave it.
type FakeClient struct {
	mu        sync.Mutex
	connected bool
	clock     time2.Clock
	keyTTL    time.Duration

	keys     map[string]*fakeKey
	handlers map[string]Handler

	grantMints int

	// Failure injection for tests. When set, the corresponding call fails
	// with the given error.
	MintKeyErr   error
	MintGrantErr error
	ExecuteErr   error
}

type fakeKey struct {
	priv    *ecdsa.PrivateKey
	expires time.Time
}

// NewFakeClient builds a disconnected fake network. A zero keyTTL means keys
// never expire.
func NewFakeClient(clock time2.Clock, keyTTL time.Duration) *FakeClient {
	if clock == nil {
		clock = time2.DefaultClock
	}
	c := &FakeClient{
		clock:    clock,
		keyTTL:   keyTTL,
		keys:     make(map[string]*fakeKey),
		handlers: make(map[string]Handler),
	}
	c.handlers[ProgramID(SignProgramCode)] = c.signProgram
	return c
}

func (c *FakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *FakeClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// RegisterProgram installs a handler for the given code blob and returns its
// content address.
func (c *FakeClient) RegisterProgram(code []byte, handler Handler) string {
	programID := ProgramID(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[programID] = handler
	return programID
}

// GrantMints reports how many capacity grants have been minted. Used by
// tests asserting mint deduplication.
func (c *FakeClient) GrantMints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grantMints
}

func (c *FakeClient) checkConnected() error {
	if !c.connected {
		return errors.New("signing network client is not connected")
	}
	return nil
}

func (c *FakeClient) MintKey(ctx context.Context, owner common.Address) (*types.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	if c.MintKeyErr != nil {
		return nil, c.MintKeyErr
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key pair")
	}
	rec := &types.KeyRecord{
		ID:        uuid.New().String(),
		PublicKey: crypto.FromECDSAPub(&priv.PublicKey),
		Owner:     owner,
		Status:    types.KeyStatusActive,
	}
	fk := &fakeKey{priv: priv}
	if c.keyTTL > 0 {
		fk.expires = c.clock.Now().Add(c.keyTTL)
	}
	c.keys[rec.ID] = fk

	log.Debug().Str("key_id", rec.ID).Str("owner", owner.Hex()).Msg("Minted key pair on fake network")
	return rec, nil
}

func (c *FakeClient) TransferKey(ctx context.Context, keyID string, newOwner common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}
	if _, ok := c.keys[keyID]; !ok {
		return errors.Errorf("unknown key %s", keyID)
	}
	return nil
}

func (c *FakeClient) MintCapacityGrant(ctx context.Context, req CapacityGrantRequest) (*types.CapacityGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	if c.MintGrantErr != nil {
		return nil, c.MintGrantErr
	}

	c.grantMints++
	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}
	grant := &types.CapacityGrant{
		ID:                    uuid.New().String(),
		Delegator:             req.Delegator,
		Delegatees:            append([]common.Address(nil), req.Delegatees...),
		MaxUses:               maxUses,
		RequestsPerKilosecond: req.RequestsPerKilosecond,
		ExpiresAt:             c.clock.Now().Add(time.Duration(req.ValidDays) * 24 * time.Hour),
	}
	return grant, nil
}

func (c *FakeClient) ExecuteProgram(ctx context.Context, cred *types.SessionCredential, ref ProgramRef, params map[string]any) (*ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	programID := ref.Resolve()

	c.mu.Lock()
	if err := c.checkConnected(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.ExecuteErr != nil {
		err := c.ExecuteErr
		c.mu.Unlock()
		return nil, err
	}
	handler, ok := c.handlers[programID]
	c.mu.Unlock()

	if !ok {
		return nil, &ExecutionError{Message: fmt.Sprintf("unknown program %s", programID)}
	}
	response, err := handler(ctx, params)
	if err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}
	return &ExecutionResult{Response: response}, nil
}

// signProgram signs keccak256(message) with the key named by keyId. The key
// share stays inside the fake network, mirroring the real boundary.
func (c *FakeClient) signProgram(ctx context.Context, params map[string]any) (string, error) {
	keyID, _ := params["keyId"].(string)
	message, _ := params["message"].(string)
	if keyID == "" || message == "" {
		return "", errors.New("sign program requires keyId and message params")
	}

	c.mu.Lock()
	fk, ok := c.keys[keyID]
	c.mu.Unlock()
	if !ok {
		return "", errors.Errorf("no key share for key %s", keyID)
	}
	if !fk.expires.IsZero() && !c.clock.Now().Before(fk.expires) {
		return "", errors.Errorf("key share for key %s has expired", keyID)
	}

	sig, err := crypto.Sign(crypto.Keccak256([]byte(message)), fk.priv)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign message")
	}
	return hex.EncodeToString(sig), nil
}
