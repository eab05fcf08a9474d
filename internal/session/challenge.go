package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-key-authority/internal/types"
)

const (
	nonceLength  = 16
	nonceCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// newNonce draws 16 characters from a 62-character alphabet using crypto
// randomness, about 2^95 of effective entropy per draw.
func newNonce() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(nonceCharset)))
	for i := 0; i < nonceLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "failed to draw nonce character")
		}
		b.WriteByte(nonceCharset[n.Int64()])
	}
	return b.String(), nil
}

// Challenge is the canonical authorization statement a subject must sign.
// Message construction is deterministic given identical fields; only the
// nonce varies between otherwise identical requests.
type Challenge struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	Version   string
	ChainID   int
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Resources []types.ResourceAbility
}

// Message renders the sign-in-with-Ethereum style statement.
func (c *Challenge) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n%s\n\n", c.Domain, c.Address)
	if c.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", c.Statement)
	}
	fmt.Fprintf(&b, "URI: %s\n", c.URI)
	fmt.Fprintf(&b, "Version: %s\n", c.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", c.Nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Expiration Time: %s", c.ExpiresAt.UTC().Format(time.RFC3339))
	if len(c.Resources) > 0 {
		fmt.Fprintf(&b, "\nResources:")
		for _, res := range c.Resources {
			fmt.Fprintf(&b, "\n- urn:key-authority:%s/%s", res.Resource, res.Ability)
		}
	}
	return b.String()
}
