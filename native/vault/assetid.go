package vault

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Asset identifiers follow the CAIP-19 form
// <chain-namespace>:<chain-reference>/<asset-namespace>:<asset-reference>.
// Off-chain indexers key balances and vault listings on this string, so the
// grammar is part of the stable interface.
var assetIDPattern = regexp.MustCompile(`^[-a-z0-9]{3,8}:[-_a-zA-Z0-9]{1,32}/[-a-z0-9]{3,8}:[-.%a-zA-Z0-9]{1,128}$`)

var ErrInvalidAssetID = errors.New("vault: invalid asset id")

const (
	// AssetNamespaceBank marks native denominations.
	AssetNamespaceBank = "bank"
	// AssetNamespaceCW20 marks fungible-token contract assets.
	AssetNamespaceCW20 = "cw20"
)

// AssetID is a validated CAIP-19 asset identifier.
type AssetID string

// ParsedAssetID exposes the four segments of an asset identifier.
type ParsedAssetID struct {
	ChainNamespace string
	ChainReference string
	AssetNamespace string
	AssetReference string
}

// NewAssetID assembles and validates an asset identifier from its segments.
func NewAssetID(chainNamespace, chainReference, assetNamespace, assetReference string) (AssetID, error) {
	id := AssetID(fmt.Sprintf("%s:%s/%s:%s", chainNamespace, chainReference, assetNamespace, assetReference))
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the identifier against the CAIP-19 grammar.
func (id AssetID) Validate() error {
	if !assetIDPattern.MatchString(string(id)) {
		return ErrInvalidAssetID
	}
	return nil
}

// Parse splits a validated identifier into its segments.
func (id AssetID) Parse() (ParsedAssetID, error) {
	if err := id.Validate(); err != nil {
		return ParsedAssetID{}, err
	}
	chainPart, assetPart, _ := strings.Cut(string(id), "/")
	chainNamespace, chainReference, _ := strings.Cut(chainPart, ":")
	assetNamespace, assetReference, _ := strings.Cut(assetPart, ":")
	return ParsedAssetID{
		ChainNamespace: chainNamespace,
		ChainReference: chainReference,
		AssetNamespace: assetNamespace,
		AssetReference: assetReference,
	}, nil
}

func (id AssetID) String() string { return string(id) }

// BankAssetID builds the identifier for a native denomination on the given
// chain.
func BankAssetID(chainNamespace, chainID, denom string) (AssetID, error) {
	return NewAssetID(chainNamespace, chainID, AssetNamespaceBank, denom)
}

// TokenAssetID builds the identifier for a fungible-token contract asset.
func TokenAssetID(chainNamespace, chainID, contract string) (AssetID, error) {
	return NewAssetID(chainNamespace, chainID, AssetNamespaceCW20, contract)
}
