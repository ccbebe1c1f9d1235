package types

import "fmt"

// Network identifies the Solana cluster the facilitator settles on.
type Network string

const (
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
	NetworkSolanaLocal   Network = "solana-local"
)

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet || n == NetworkSolanaLocal
}

func (n Network) IsTestnet() bool {
	return n == NetworkSolanaDevnet || n == NetworkSolanaLocal
}

func (n Network) String() string {
	return string(n)
}

// ExplorerTxURL returns the block-explorer link for a transaction signature
// on this network.
func (n Network) ExplorerTxURL(signature string) string {
	switch n {
	case NetworkSolanaDevnet:
		return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=devnet", signature)
	case NetworkSolanaLocal:
		return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=custom", signature)
	default:
		return fmt.Sprintf("https://explorer.solana.com/tx/%s", signature)
	}
}
