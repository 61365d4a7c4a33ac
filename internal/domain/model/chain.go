package model

import (
	"fmt"
	"strings"
)

type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBSC      Chain = "bsc"
)

func (c Chain) String() string {
	return string(c)
}

// EVMChains lists the supported chains that speak the Ethereum JSON-RPC API.
func EVMChains() []Chain {
	return []Chain{ChainEthereum, ChainBase, ChainPolygon, ChainArbitrum, ChainBSC}
}

// IsEVM reports whether c is one of EVMChains.
func (c Chain) IsEVM() bool {
	for _, e := range EVMChains() {
		if c == e {
			return true
		}
	}
	return false
}

// ParseChain accepts a supported chain name in any case.
func ParseChain(raw string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(raw)))
	if c == ChainSolana || c.IsEVM() {
		return c, nil
	}
	return "", fmt.Errorf("unknown chain %q", raw)
}

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
	NetworkSepolia Network = "sepolia"
)

func (n Network) String() string {
	return string(n)
}

// Priority is the caller-selected cost/speed tradeoff for a submission.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) String() string {
	return string(p)
}

// Priorities lists every tier from cheapest to most aggressive.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// ParsePriority accepts a tier name in any case. An empty string maps to medium.
func ParsePriority(raw string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow, nil
	case "", "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q", raw)
	}
}
