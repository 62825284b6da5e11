package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ExchangeABI covers the read-only order validation entry point of the exchange
const ExchangeABI = `[{
	"inputs": [
		{"internalType": "struct Order", "name": "order", "type": "tuple", "components": [
			{"name": "exchange", "type": "address"},
			{"name": "maker", "type": "address"},
			{"name": "taker", "type": "address"},
			{"name": "saleSide", "type": "uint8"},
			{"name": "saleKind", "type": "uint8"},
			{"name": "target", "type": "address"},
			{"name": "paymentToken", "type": "address"},
			{"name": "callData", "type": "bytes"},
			{"name": "replacementPattern", "type": "bytes"},
			{"name": "staticTarget", "type": "address"},
			{"name": "staticExtra", "type": "bytes"},
			{"name": "basePrice", "type": "uint256"},
			{"name": "endPrice", "type": "uint256"},
			{"name": "listingTime", "type": "uint256"},
			{"name": "expirationTime", "type": "uint256"},
			{"name": "salt", "type": "uint256"}
		]},
		{"internalType": "struct Sig", "name": "sig", "type": "tuple", "components": [
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"},
			{"name": "v", "type": "uint8"}
		]}
	],
	"name": "validateOrder",
	"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}]`

// ERC721ABI for ownership and operator approval lookups
const ERC721ABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ProxyRegistryABI resolves a user's delegated-transfer proxy
const ProxyRegistryABI = `[{
	"inputs": [{"internalType": "address", "name": "", "type": "address"}],
	"name": "proxies",
	"outputs": [{"internalType": "contract OwnableDelegateProxy", "name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}]`

// ERC20ABI for allowance and balanceOf
const ERC20ABI = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	}
]`

type abis struct {
	exchange      abi.ABI
	erc721        abi.ABI
	proxyRegistry abi.ABI
	erc20         abi.ABI
}

func parseABIs() (*abis, error) {
	var (
		out abis
		err error
	)
	for _, def := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"exchange", ExchangeABI, &out.exchange},
		{"erc721", ERC721ABI, &out.erc721},
		{"proxy registry", ProxyRegistryABI, &out.proxyRegistry},
		{"erc20", ERC20ABI, &out.erc20},
	} {
		if *def.dst, err = abi.JSON(strings.NewReader(def.json)); err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", def.name, err)
		}
	}
	return &out, nil
}
