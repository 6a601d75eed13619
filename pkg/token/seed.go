package token

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML shape of the token seed loaded at bootstrap.
type SeedFile struct {
	Tokens []SeedToken `yaml:"tokens"`
}

// SeedToken is one token entry in the seed file.
type SeedToken struct {
	Symbol          string `yaml:"symbol"`
	Name            string `yaml:"name"`
	ContractAddress string `yaml:"contract_address"`
	Decimals        int    `yaml:"decimals"`
}

// LoadSeed reads and validates a token seed file.
func LoadSeed(path string) ([]*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses token seed YAML.
func ParseSeed(data []byte) ([]*Token, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token seed: %w", err)
	}

	seen := make(map[string]bool, len(file.Tokens))
	tokens := make([]*Token, 0, len(file.Tokens))
	for i, entry := range file.Tokens {
		if entry.Symbol == "" {
			return nil, fmt.Errorf("token seed entry %d: symbol is required", i)
		}
		if seen[entry.Symbol] {
			return nil, fmt.Errorf("token seed entry %d: duplicate symbol %s", i, entry.Symbol)
		}
		if entry.Decimals < 0 {
			return nil, fmt.Errorf("token seed entry %d: decimals must be >= 0", i)
		}
		seen[entry.Symbol] = true
		tokens = append(tokens, &Token{
			Symbol:          entry.Symbol,
			Name:            entry.Name,
			ContractAddress: entry.ContractAddress,
			Decimals:        entry.Decimals,
		})
	}
	return tokens, nil
}
