package wallets

import "time"

// ManagedWallet is an ephemeral keypair owned by the operator.
type ManagedWallet struct {
	Address    string    `json:"address"`
	PrivateKey string    `json:"privateKey"`
	CreatedAt  time.Time `json:"createdAt"`
	HasMinted  bool      `json:"hasMinted"`
	LastMintTx *string   `json:"lastMintTx"`

	// Undecryptable is set on load when the stored key could not be opened.
	// Such wallets keep their sealed key and are skipped by signer operations.
	Undecryptable bool   `json:"-"`
	sealed        string
}

// Document is the on-disk shape of both the active and the archive file.
type Document struct {
	Wallets []ManagedWallet `json:"wallets"`
}

// Addresses returns the wallet addresses in document order.
func (d *Document) Addresses() []string {
	out := make([]string, 0, len(d.Wallets))
	for _, w := range d.Wallets {
		out = append(out, w.Address)
	}
	return out
}

func (d *Document) indexOf(address string) int {
	for i, w := range d.Wallets {
		if sameAddress(w.Address, address) {
			return i
		}
	}
	return -1
}
