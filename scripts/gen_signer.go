// Generates a fresh secp256k1 keypair for use as a delegatee or session
// signer, e.g. with the keyauthority CLI's --signer-key flag.
package main

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	fmt.Printf("private key: %s\n", hex.EncodeToString(crypto.FromECDSA(key)))
	fmt.Printf("address:     %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
}
