package rewards

import (
	"fmt"

	"meme-token-ledger/internal/solana"
)

// VaultSeed prefixes the seeds of a reward vault address.
const VaultSeed = "reward_vault"

// VaultAddress derives the program address that holds funded rewards for mint.
func VaultAddress(mint, programID solana.Pubkey) (solana.Pubkey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(VaultSeed), mint[:]}, programID)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("derive reward vault address: %w", err)
	}
	return addr, nil
}
