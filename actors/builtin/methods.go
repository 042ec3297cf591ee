package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

var MethodsAccount = struct {
	Constructor   abi.MethodNum
	PubkeyAddress abi.MethodNum
}{MethodConstructor, 2}

var MethodsLock = struct {
	Constructor abi.MethodNum
	Unlock      abi.MethodNum
	Balance     abi.MethodNum
}{MethodConstructor, 2, 3}

var MethodsLockdrop = struct {
	Constructor abi.MethodNum
	Lock        abi.MethodNum
}{MethodConstructor, 2}
