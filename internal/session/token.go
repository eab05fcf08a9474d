package session

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/kashguard/go-key-authority/internal/types"
)

// tokenClaims is the compact transport form of an issued credential.
type tokenClaims struct {
	jwt.RegisteredClaims
	Resources       []types.ResourceAbility `json:"res"`
	CapacityGrantID string                  `json:"cap,omitempty"`
	Statement       string                  `json:"stmt,omitempty"`
	Nonce           string                  `json:"nonce"`
	Proof           string                  `json:"proof"`
}

// EncodeToken serializes a credential as an HS256 JWT for transport between
// processes. The token adds no authority of its own; the embedded proof is
// what the signing network verifies.
func EncodeToken(cred *types.SessionCredential, secret []byte) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.Subject.Hex(),
			IssuedAt:  jwt.NewNumericDate(cred.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cred.ExpiresAt),
		},
		Resources:       cred.Resources,
		CapacityGrantID: cred.CapacityGrantID,
		Statement:       cred.Statement,
		Nonce:           cred.Nonce,
		Proof:           cred.Proof.String(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session token")
	}
	return token, nil
}

// DecodeToken parses and validates a session token. Expired tokens fail
// with the credential-expired kind.
func DecodeToken(tokenString string, secret []byte) (*types.SessionCredential, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.WrapKind(types.ErrCredentialExpired, err, "parse session token")
		}
		return nil, types.WrapKind(types.ErrSignatureMismatch, err, "parse session token")
	}

	proof, err := hexutil.Decode(claims.Proof)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt proof in session token")
	}
	var issuedAt, expiresAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &types.SessionCredential{
		Subject:         common.HexToAddress(claims.Subject),
		Resources:       claims.Resources,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		CapacityGrantID: claims.CapacityGrantID,
		Statement:       claims.Statement,
		Nonce:           claims.Nonce,
		Proof:           proof,
	}, nil
}
