package rpc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockRef names the block a query runs against: a tag ("latest", "pending",
// "earliest") or an explicit height. The zero value is "latest".
type BlockRef struct {
	tag      string
	height   uint64
	byHeight bool
}

// LatestBlock is the "latest" tag reference.
func LatestBlock() BlockRef { return BlockRef{} }

// BlockAt pins a reference to an explicit height.
func BlockAt(height uint64) BlockRef {
	return BlockRef{height: height, byHeight: true}
}

// ParseBlockRef converts a block identifier (tag, decimal, or 0x-hex) into a
// BlockRef. Empty input means "latest".
func ParseBlockRef(arg string) (BlockRef, error) {
	arg = strings.TrimSpace(strings.ToLower(arg))

	switch arg {
	case "", "latest":
		return BlockRef{}, nil
	case "pending", "earliest":
		return BlockRef{tag: arg}, nil
	}

	if strings.HasPrefix(arg, "0x") {
		n, err := hexutil.DecodeUint64(arg)
		if err != nil {
			return BlockRef{}, fmt.Errorf("invalid block reference %q: %w", arg, err)
		}
		return BlockAt(n), nil
	}

	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return BlockRef{}, fmt.Errorf("invalid block reference %q (expected tag, decimal, or 0x-hex)", arg)
	}
	return BlockAt(n), nil
}

// String renders the reference for display and reports: the tag name or the
// decimal height.
func (b BlockRef) String() string {
	if b.byHeight {
		return strconv.FormatUint(b.height, 10)
	}
	if b.tag == "" {
		return "latest"
	}
	return b.tag
}

// rpcArg renders the reference as an eth_* block parameter.
func (b BlockRef) rpcArg() string {
	if b.byHeight {
		return hexutil.EncodeUint64(b.height)
	}
	if b.tag == "" {
		return "latest"
	}
	return b.tag
}
