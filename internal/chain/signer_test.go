package chain

import (
	"math/big"
	"testing"
)

func TestScaleToBaseUnits(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   string
	}{
		{name: "zero", amount: 0, want: "0"},
		{name: "one token", amount: 1, want: "1000000000000000000"},
		{name: "ten thousand tokens", amount: 10000, want: "10000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleToBaseUnits(tt.amount)
			if got.String() != tt.want {
				t.Fatalf("expected %s base units, got %s", tt.want, got.String())
			}
		})
	}
}

func TestCapGasPrice(t *testing.T) {
	gwei := func(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), gweiInWei) }

	tests := []struct {
		name       string
		suggested  *big.Int
		multiplier int64
		capGwei    int64
		want       *big.Int
	}{
		{
			name:       "below cap keeps multiplied price",
			suggested:  gwei(30),
			multiplier: 10,
			capGwei:    500,
			want:       gwei(300),
		},
		{
			name:       "above cap clamps to cap",
			suggested:  gwei(90),
			multiplier: 10,
			capGwei:    500,
			want:       gwei(500),
		},
		{
			name:       "exactly at cap is kept",
			suggested:  gwei(50),
			multiplier: 10,
			capGwei:    500,
			want:       gwei(500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CapGasPrice(tt.suggested, tt.multiplier, tt.capGwei)
			if got.Cmp(tt.want) != 0 {
				t.Fatalf("expected %s wei, got %s wei", tt.want.String(), got.String())
			}
		})
	}
}

func TestContractsForNetwork(t *testing.T) {
	testnet, err := ContractsForNetwork("TESTNET")
	if err != nil {
		t.Fatalf("TESTNET profile returned error: %v", err)
	}
	mainnet, err := ContractsForNetwork("mainnet")
	if err != nil {
		t.Fatalf("lowercase mainnet should resolve, got error: %v", err)
	}
	if testnet.Token.Address == mainnet.Token.Address {
		t.Fatal("expected distinct token deployments per network")
	}
	if _, ok := testnet.Relayer.ABI.Methods["transferWithPermit"]; !ok {
		t.Fatal("relayer abi is missing transferWithPermit")
	}
	if _, ok := testnet.Token.ABI.Methods["nonces"]; !ok {
		t.Fatal("token abi is missing nonces")
	}

	if _, err := ContractsForNetwork("DEVNET"); err == nil {
		t.Fatal("expected an error for an unknown network profile")
	}
}
