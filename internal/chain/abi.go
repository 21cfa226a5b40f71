package chain

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const tokenABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"MAX_SUPPLY","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// mintVariant is one of the mint signatures faucet tokens are deployed with.
type mintVariant struct {
	signature string
	abi       abi.ABI
	args      func(from common.Address, amount *big.Int) []any
}

var mintVariants = []mintVariant{
	{
		signature: "mint()",
		abi:       mustABI(`[{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[],"outputs":[]}]`),
		args:      func(common.Address, *big.Int) []any { return nil },
	},
	{
		signature: "mint(address)",
		abi:       mustABI(`[{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]}]`),
		args:      func(from common.Address, _ *big.Int) []any { return []any{from} },
	},
	{
		signature: "mint(uint256)",
		abi:       mustABI(`[{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}]`),
		args:      func(_ common.Address, amount *big.Int) []any { return []any{amount} },
	},
}

func (v mintVariant) selector() []byte {
	return v.abi.Methods[MethodMint].ID
}

// presentIn reports whether the runtime bytecode dispatches on the variant's
// selector (PUSH4 <selector>).
func (v mintVariant) presentIn(code []byte) bool {
	needle := append([]byte{0x63}, v.selector()...)
	return bytes.Contains(code, needle)
}

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
