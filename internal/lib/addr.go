package lib

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
)

func GetRandomAddr() common.Address {
	return common.BigToAddress(big.NewInt(rand.Int63()))
}

func AddrShort(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:5] + ".." + addr[len(addr)-3:]
}
