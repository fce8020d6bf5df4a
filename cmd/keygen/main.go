// Command keygen generates an ECDH keypair for provider registration. The
// public key is submitted with registerHealthcareProvider; the private key is
// printed exactly once and must be stored by the provider, never the server.
package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"medledger/internal/cryptoengine"
)

func main() {
	pair, err := cryptoengine.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("public_key:  %s\n", base64.StdEncoding.EncodeToString(cryptoengine.PublicKeyBytes(pair.Public)))
	fmt.Printf("private_key: %s\n", base64.StdEncoding.EncodeToString(cryptoengine.PrivateKeyBytes(pair.Private)))
}
