package solana

import (
	"encoding/json"
	"testing"
)

func TestParsePubkey(t *testing.T) {
	const addr = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	pk, err := ParsePubkey(addr)
	if err != nil {
		t.Fatalf("ParsePubkey: %v", err)
	}

	if pk.String() != addr {
		t.Errorf("round trip mismatch: got %s, want %s", pk.String(), addr)
	}

	if _, err := ParsePubkey("0OIl"); err == nil {
		t.Error("expected error for invalid base58")
	}

	if _, err := ParsePubkey("3mJr7AoUXx2Wqd"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestPubkey_JSON(t *testing.T) {
	type wrapper struct {
		Key Pubkey `json:"key"`
	}

	in := wrapper{Key: TokenProgramID}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"key":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}

	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Key != TokenProgramID {
		t.Errorf("unmarshal mismatch")
	}
}

func TestFindProgramAddress_OffCurve(t *testing.T) {
	programID := MustParsePubkey("2ELnZEunuAXPW966HS57chzPXCCHHhyVkksR6qmEpwy2")

	pda, bump, err := FindProgramAddress([][]byte{[]byte("proposal"), {0, 0, 0, 0, 0, 0, 0, 0}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if IsOnCurve(pda[:]) {
		t.Error("derived address must be off curve")
	}

	again, err := CreateProgramAddress([][]byte{[]byte("proposal"), {0, 0, 0, 0, 0, 0, 0, 0}, {bump}}, programID)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if again != pda {
		t.Errorf("CreateProgramAddress with found bump = %s, want %s", again, pda)
	}
}

func TestFindProgramAddress_Deterministic(t *testing.T) {
	programID := MustParsePubkey("2ELnZEunuAXPW966HS57chzPXCCHHhyVkksR6qmEpwy2")

	a, _, err := FindProgramAddress([][]byte{[]byte("proposal"), {1}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	b, _, err := FindProgramAddress([][]byte{[]byte("proposal"), {1}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	c, _, err := FindProgramAddress([][]byte{[]byte("proposal"), {2}}, programID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if a != b {
		t.Error("same seeds must derive the same address")
	}
	if a == c {
		t.Error("different seeds must derive different addresses")
	}
}

func TestFindProgramAddress_SeedTooLong(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, TokenProgramID)
	if err == nil {
		t.Fatal("expected error for oversized seed")
	}
}

func TestAssociatedTokenAddress(t *testing.T) {
	owner := MustParsePubkey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := MustParsePubkey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress: %v", err)
	}

	if IsOnCurve(ata[:]) {
		t.Error("associated token address must be off curve")
	}

	other, err := AssociatedTokenAddress(mint, owner)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress: %v", err)
	}
	if ata == other {
		t.Error("swapping owner and mint must change the address")
	}
}
