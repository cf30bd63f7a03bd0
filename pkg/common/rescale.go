package common

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// SolanaDecimals is the denomination of the bridged SPL token.
	SolanaDecimals uint8 = 9
	// OmegaDecimals is the denomination of the native Omega coin released by the bridge contract.
	OmegaDecimals uint8 = 18
)

var (
	ErrNegativeAmount = errors.New("negative amount")
	ErrAmountOverflow = errors.New("amount does not fit in 256 bits")
)

// Rescale converts amount from `from` decimals to `to` decimals. Scaling up is exact or fails with
// ErrAmountOverflow. Scaling down truncates towards zero, so any remainder below 10^(from-to) is dropped.
func Rescale(amount *big.Int, from, to uint8) (*big.Int, error) {
	if amount == nil {
		return nil, errors.New("nil amount")
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}

	switch {
	case to > from:
		scaled, overflow := new(uint256.Int).MulOverflow(value, pow10(to-from))
		if overflow {
			return nil, fmt.Errorf("scaling %s by 10^%d: %w", amount, to-from, ErrAmountOverflow)
		}
		return scaled.ToBig(), nil
	case to < from:
		return new(uint256.Int).Div(value, pow10(from-to)).ToBig(), nil
	default:
		return value.ToBig(), nil
	}
}

// SolanaToOmega scales a raw SPL amount to the Omega denomination.
func SolanaToOmega(amount *big.Int) (*big.Int, error) {
	return Rescale(amount, SolanaDecimals, OmegaDecimals)
}

// OmegaToSolana scales an Omega amount down to SPL units, truncating dust.
func OmegaToSolana(amount *big.Int) (*big.Int, error) {
	return Rescale(amount, OmegaDecimals, SolanaDecimals)
}

func pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
}
