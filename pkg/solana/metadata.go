package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

var MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// key(1) + update authority(32) + mint(32) + three empty strings.
const minMetadataLen = 1 + 32 + 32 + 3*4

// Upper bound of a Metaplex metadata account.
const maxMetadataLen = 1 << 14

var ErrInvalidMetadata = errors.New("invalid metadata account")

type (
	Metadata struct {
		UpdateAuthority solana.PublicKey
		Mint            solana.PublicKey
		Name            string
		Symbol          string
		URI             string
	}

	// metadataPrefix is the fixed head of a Metaplex metadata account. Creators, collection and the rest of the
	// account follow and are ignored.
	metadataPrefix struct {
		Key             uint8
		UpdateAuthority [32]byte
		Mint            [32]byte
		Name            string
		Symbol          string
		URI             string
	}
)

// MetadataAddress derives the metadata PDA of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		MetadataProgramID[:],
		mint[:],
	}, MetadataProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address for %s: %w", mint, err)
	}
	return addr, nil
}

func DecodeMetadata(data []byte) (*Metadata, error) {
	if len(data) < minMetadataLen || len(data) > maxMetadataLen {
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidMetadata, len(data))
	}

	if err := checkStringBounds(data, 1+32+32, 3); err != nil {
		return nil, err
	}

	var p metadataPrefix
	if err := borsh.Deserialize(&p, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	// Metaplex pads the fixed-size fields with NULs.
	return &Metadata{
		UpdateAuthority: solana.PublicKeyFromBytes(p.UpdateAuthority[:]),
		Mint:            solana.PublicKeyFromBytes(p.Mint[:]),
		Name:            strings.ReplaceAll(p.Name, "\x00", ""),
		Symbol:          strings.ReplaceAll(p.Symbol, "\x00", ""),
		URI:             strings.ReplaceAll(p.URI, "\x00", ""),
	}, nil
}

// checkStringBounds makes sure the length prefixes of n consecutive borsh strings starting at offset stay inside
// data before they get allocated.
func checkStringBounds(data []byte, offset int, n int) error {
	for i := 0; i < n; i++ {
		if offset+4 > len(data) {
			return fmt.Errorf("%w: string %d truncated", ErrInvalidMetadata, i)
		}
		l := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if l > len(data)-offset {
			return fmt.Errorf("%w: string %d of length %d overruns account", ErrInvalidMetadata, i, l)
		}
		offset += l
	}
	return nil
}
